package convert

import (
	"errors"
	"fmt"

	"github.com/migadu/procsieve/consts"
	"github.com/migadu/procsieve/procmail"
	"github.com/migadu/procsieve/sieve"
)

// Action translates a recipe's action into Sieve commands. The caller has
// already opened ctx one block deeper than the recipe's own context.
func (t *Translator) Action(flags procmail.Flags, action procmail.Action, ctx Context) ([]sieve.Command, error) {
	// A block holding a single entry collapses into that entry: an
	// assignment becomes a plain set, and a nested recipe with identical
	// flags is the same action once removed.
	if block, ok := action.(procmail.Block); ok && len(block.Nodes) == 1 {
		switch only := block.Nodes[0].(type) {
		case *procmail.Assignment:
			return []sieve.Command{sieve.Set{Variable: only.Variable, Value: ctx.Interpolate(only.Value)}}, nil
		case *procmail.Recipe:
			if only.Flags.Equal(flags) {
				return t.Action(flags, only.Action, ctx)
			}
		}
	}

	switch a := action.(type) {
	case procmail.Mailbox:
		return t.mailboxAction(flags, a, ctx), nil
	case procmail.Forward:
		return forwardAction(flags, a, ctx), nil
	case procmail.Pipe:
		return t.pipeAction(flags, a, ctx)
	case procmail.Block:
		return t.Rules(a.Nodes, ctx.BlockChild())
	default:
		panic(fmt.Sprintf("convert: unknown action type %T", action))
	}
}

func (t *Translator) mailboxAction(flags procmail.Flags, a procmail.Mailbox, ctx Context) []sieve.Command {
	dest := ctx.MailboxName(ctx.Interpolate(a.Destination))
	carbonCopy := flags.Has('c')
	if !carbonCopy {
		if a.Destination == "/dev/null" {
			return []sieve.Command{sieve.Discard{}, sieve.Stop{}}
		}
		if dest == consts.MailboxInbox {
			return []sieve.Command{sieve.Keep{}, sieve.Stop{}}
		}
	}
	cmds := []sieve.Command{sieve.Fileinto{Mailbox: dest, Copy: carbonCopy, Create: true}}
	if !carbonCopy {
		cmds = append(cmds, sieve.Stop{})
	}
	return cmds
}

func forwardAction(flags procmail.Flags, a procmail.Forward, ctx Context) []sieve.Command {
	carbonCopy := flags.Has('c')
	cmds := make([]sieve.Command, 0, len(a.Destinations)+1)
	for i, dest := range a.Destinations {
		copyTag := true
		if i == len(a.Destinations)-1 {
			copyTag = carbonCopy
		}
		cmds = append(cmds, sieve.Redirect{Address: ctx.Interpolate(dest), Copy: copyTag})
	}
	if !carbonCopy {
		cmds = append(cmds, sieve.Stop{})
	}
	return cmds
}

func (t *Translator) pipeAction(flags procmail.Flags, a procmail.Pipe, ctx Context) ([]sieve.Command, error) {
	cmds, err := t.CommandLine(ctx, a.Command)
	if err != nil {
		if errors.Is(err, consts.ErrShellCommand) {
			return []sieve.Command{t.diags.Fixme(fmt.Sprintf("%s: (%s)", err, describePipe(a)), nil)}, nil
		}
		return nil, err
	}
	if !flags.Has('c') && !flags.Has('f') {
		cmds = append(cmds, sieve.Discard{}, sieve.Stop{})
	}
	return cmds, nil
}

func describePipe(a procmail.Pipe) string {
	if a.Variable != "" {
		return a.Variable + "=| " + a.Command
	}
	return "| " + a.Command
}
