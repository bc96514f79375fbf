package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

var (
	// ErrQuit ends a console loop when returned by a handler.
	ErrQuit           = errors.New("quit")
	ErrUnknownCommand = errors.New("unknown command")
)

// Handler runs one console command.
type Handler func(args []string) error

type commandEntry struct {
	Command
	name    string
	handler Handler
}

// CommandSet maps console words to handlers.
type CommandSet struct {
	entries []commandEntry
	byName  map[string]int
}

func NewCommandSet() *CommandSet {
	return &CommandSet{byName: make(map[string]int)}
}

// Add registers name. The usage line defaults to the name.
func (s *CommandSet) Add(name, usage, description string, h Handler) *CommandSet {
	if usage == "" {
		usage = name
	}
	s.byName[name] = len(s.entries)
	s.entries = append(s.entries, commandEntry{
		Command: Command{Usage: usage, Description: description},
		name:    name,
		handler: h,
	})
	return s
}

// Exec parses and runs one input line. Blank lines are ignored.
func (s *CommandSet) Exec(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name := strings.ToLower(fields[0])
	i, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("%w %q (try \"help\")", ErrUnknownCommand, fields[0])
	}
	return s.entries[i].handler(fields[1:])
}

func (s *CommandSet) Names() []string {
	names := make([]string, len(s.entries))
	for i, e := range s.entries {
		names[i] = e.name
	}
	return names
}

func (s *CommandSet) Help() []Command {
	cmds := make([]Command, len(s.entries))
	for i, e := range s.entries {
		cmds[i] = e.Command
	}
	return cmds
}

// Console is an interactive readline prompt driving a CommandSet.
type Console struct {
	rl       *readline.Instance
	commands *CommandSet
	once     sync.Once
}

func NewConsole(prompt string, commands *CommandSet) (*Console, error) {
	items := make([]readline.PrefixCompleterInterface, 0, len(commands.entries))
	for _, name := range commands.Names() {
		items = append(items, readline.PcItem(name))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		HistoryFile:     filepath.Join(os.TempDir(), ".deskbridge_history"),
		HistoryLimit:    100,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize console: %w", err)
	}
	return &Console{rl: rl, commands: commands}, nil
}

// Stdout writes above the prompt without corrupting the input line.
func (c *Console) Stdout() io.Writer {
	return c.rl.Stdout()
}

func (c *Console) SetPrompt(prompt string) {
	c.rl.SetPrompt(prompt)
	c.rl.Refresh()
}

// Run reads commands until quit, EOF, interrupt or ctx cancellation.
// Handler errors other than ErrQuit are printed and the loop continues.
func (c *Console) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, c.Close)
	defer stop()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if err := c.commands.Exec(line); err != nil {
			if errors.Is(err, ErrQuit) {
				return nil
			}
			fmt.Fprintf(c.Stdout(), "%s %s\n", ErrorStyle.Render(IconError), ErrorStyle.Render(err.Error()))
		}
	}
}

func (c *Console) Close() {
	c.once.Do(func() {
		c.rl.Close()
	})
}
