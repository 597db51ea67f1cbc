package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/eepromkv/internal/literal"
	"github.com/calvinalkan/eepromkv/pkg/cborfile"
)

const shellPrompt = "eepromkv> "

var shellCommands = []string{"get", "put", "del", "delete", "read", "erase", "keys", "reload", "help", "exit", "quit"}

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	flags := flag.NewFlagSet("shell", flag.ContinueOnError)
	df := a.addDeviceFlags(flags, true)

	return &Command{
		Flags: flags,
		Usage: "shell -t <type> -b <bus> -a <addr>",
		Short: "Interactive session on the EEPROM file",
		Long: `Open the device once and run get/put/del/read/erase/keys commands
against it. Line editing and history are available when stdin is a terminal.
Values given to put are parsed as literals.`,
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return a.withFile(ctx, o, df, func(f *cborfile.File) error {
				lines := a.lineReader(o)
				defer lines.Close()

				return (&shell{file: f, io: o, lines: lines}).run(ctx)
			})
		},
	}
}

// lineReader reads shell input.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(line string)
	Close() error
}

func (a *app) lineReader(o *IO) lineReader {
	if f, ok := o.In().(*os.File); ok && a.isTerminal(f.Fd()) {
		return newLinerReader(a.historyFile())
	}

	return &scanReader{scanner: bufio.NewScanner(o.In())}
}

func (a *app) historyFile() string {
	if home := a.env["HOME"]; home != "" {
		return filepath.Join(home, ".eepromkv_history")
	}

	return ""
}

// linerReader is the terminal line editor.
type linerReader struct {
	state   *liner.State
	history string
}

func newLinerReader(history string) *linerReader {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	state.SetCompleter(func(line string) []string {
		var out []string

		for _, c := range shellCommands {
			if strings.HasPrefix(c, strings.ToLower(line)) {
				out = append(out, c)
			}
		}

		return out
	})

	if history != "" {
		if f, err := os.Open(history); err == nil {
			_, _ = state.ReadHistory(f)
			_ = f.Close()
		}
	}

	return &linerReader{state: state, history: history}
}

func (r *linerReader) Prompt(prompt string) (string, error) {
	line, err := r.state.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", io.EOF
	}

	return line, err
}

func (r *linerReader) AppendHistory(line string) {
	r.state.AppendHistory(line)
}

func (r *linerReader) Close() error {
	if r.history != "" {
		if f, err := os.Create(r.history); err == nil {
			_, _ = r.state.WriteHistory(f)
			_ = f.Close()
		}
	}

	return r.state.Close()
}

// scanReader reads piped input without prompting.
type scanReader struct {
	scanner *bufio.Scanner
}

func (r *scanReader) Prompt(string) (string, error) {
	if r.scanner.Scan() {
		return r.scanner.Text(), nil
	}

	if err := r.scanner.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (r *scanReader) AppendHistory(string) {}

func (r *scanReader) Close() error { return nil }

// shell is the command loop over one open file.
type shell struct {
	file  *cborfile.File
	io    *IO
	lines lineReader
}

func (s *shell) run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, err := s.lines.Prompt(shellPrompt)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		s.lines.AppendHistory(line)

		cmd, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)

		switch strings.ToLower(cmd) {
		case "exit", "quit":
			return nil
		case "help", "?":
			s.help()
		default:
			err := s.exec(strings.ToLower(cmd), rest)
			if err != nil {
				s.io.ErrPrintln("error:", err)
			}
		}
	}
}

func (s *shell) exec(cmd, rest string) error {
	switch cmd {
	case "get":
		if rest == "" {
			return errors.New("usage: get <name>")
		}

		v, ok, err := s.file.Get(rest)
		if err != nil {
			return err
		}

		if !ok {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, rest)
		}

		text, err := renderValue(v)
		if err != nil {
			return err
		}

		s.io.Println(text)

	case "put":
		name, raw, ok := strings.Cut(rest, " ")
		if !ok || name == "" {
			return errors.New("usage: put <name> <value>")
		}

		v, err := literal.ParseValue(raw)
		if err != nil {
			return err
		}

		err = s.file.Put(name, v)
		if err != nil {
			return err
		}

		s.io.Println("ok")

	case "del", "delete":
		if rest == "" {
			return errors.New("usage: del <name>")
		}

		removed, err := s.file.Delete(rest)
		if err != nil {
			return err
		}

		if !removed {
			return fmt.Errorf("%w: %s", ErrKeyNotFound, rest)
		}

		s.io.Println("ok")

	case "read":
		m, err := s.file.ReadFile()
		if err != nil {
			return err
		}

		data, err := render(m, formatJSON)
		if err != nil {
			return err
		}

		s.io.Printf("%s", data)

	case "keys":
		m, err := s.file.ReadFile()
		if err != nil {
			return err
		}

		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}

		slices.Sort(keys)

		for _, k := range keys {
			s.io.Println(k)
		}

	case "erase":
		err := s.file.EraseFile()
		if err != nil {
			return err
		}

		s.io.Println("ok")

	case "reload":
		s.file.Invalidate()
		s.io.Println("ok")

	default:
		return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
	}

	return nil
}

func (s *shell) help() {
	s.io.Println("Commands:")
	s.io.Println("  get <name>            Print a value")
	s.io.Println("  put <name> <value>    Store a literal value")
	s.io.Println("  del <name>            Delete a value")
	s.io.Println("  read                  Print the whole file")
	s.io.Println("  keys                  List keys")
	s.io.Println("  erase                 Mark the device empty")
	s.io.Println("  reload                Drop the cache and re-read on next access")
	s.io.Println("  help                  Show this help")
	s.io.Println("  exit / quit           Exit")
}
