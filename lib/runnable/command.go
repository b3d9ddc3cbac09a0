// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package runnable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/slurmflow/slurmflow/lib/objtree"
)

// CommandTag is the stored type tag of Command.
var CommandTag = objtree.TypeName[Command]()

func init() {
	objtree.DefaultRegistry.MustRegister(CommandTag, func() objtree.Builder { return &Command{} })
}

// Command is a Unit that runs an external program. Signals received
// while it runs are passed on to the program.
type Command struct {
	Name    string
	Program string
	Args    []string
	Dir     string

	// Env entries ("KEY=value") are added to this process's
	// environment.
	Env []string

	// Stdout and Stderr default to this process's. They are not
	// stored.
	Stdout io.Writer
	Stderr io.Writer

	mu      sync.Mutex
	process *os.Process
}

// TypeTag implements objtree.Composite.
func (c *Command) TypeTag() string { return CommandTag }

// Fields implements objtree.Composite.
func (c *Command) Fields() []objtree.Field {
	return []objtree.Field{
		{Name: "name", Value: c.Name},
		{Name: "program", Value: c.Program},
		{Name: "args", Value: c.Args},
		{Name: "dir", Value: c.Dir},
		{Name: "env", Value: c.Env},
	}
}

// SetField implements objtree.Builder.
func (c *Command) SetField(name string, value any) error {
	switch name {
	case "name", "program", "dir":
		text, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s is %T, want string", objtree.ErrInvalidField, name, value)
		}
		switch name {
		case "name":
			c.Name = text
		case "program":
			c.Program = text
		default:
			c.Dir = text
		}
	case "args", "env":
		var list []string
		switch typed := value.(type) {
		case nil:
		case []string:
			list = typed
		default:
			return fmt.Errorf("%w: %s is %T, want []string", objtree.ErrInvalidField, name, value)
		}
		if name == "args" {
			c.Args = list
		} else {
			c.Env = list
		}
	default:
		return fmt.Errorf("%w: unknown field %q", objtree.ErrInvalidField, name)
	}
	return nil
}

// Finish implements objtree.Finisher.
func (c *Command) Finish() (any, error) {
	if c.Program == "" {
		return nil, errors.New("command has no program")
	}
	return c, nil
}

// Run starts the program and waits for it. Cancelling ctx kills it.
func (c *Command) Run(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, c.Program, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = c.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = c.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", c.Program, err)
	}
	c.mu.Lock()
	c.process = cmd.Process
	c.mu.Unlock()

	err := cmd.Wait()

	c.mu.Lock()
	c.process = nil
	c.mu.Unlock()
	if err != nil {
		return fmt.Errorf("%s: %w", c.Program, err)
	}
	return nil
}

// HandleSignal sends sig to the running program. It does nothing if
// the program is not running.
func (c *Command) HandleSignal(sig os.Signal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.process == nil {
		return nil
	}
	if err := c.process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// Cleanup has nothing to release.
func (c *Command) Cleanup() error { return nil }
