package coordinator

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/aatumaykin/playq/internal/queue"
)

// StdioPrompter answers worker prompt requests from an interactive stream.
// Prompts are serialized so two workers cannot interleave on the terminal.
type StdioPrompter struct {
	mu  sync.Mutex
	in  *bufio.Reader
	fd  int // terminal fd for masked reads, -1 when input is not a terminal
	out io.Writer
}

// NewStdioPrompter wires a prompter to the given streams.
func NewStdioPrompter(in io.Reader, out io.Writer) *StdioPrompter {
	p := &StdioPrompter{in: bufio.NewReader(in), fd: -1, out: out}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

// Prompt writes the prompt text and reads one line of input. Private
// requests suppress echo when the input is a terminal; on a pipe there is no
// echo to suppress and the line is read as-is.
func (p *StdioPrompter) Prompt(req *queue.PromptRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.out, "%s ", req.Prompt)

	if req.Private && p.fd >= 0 {
		answer, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		if err != nil {
			return "", fmt.Errorf("failed to read prompt response: %w", err)
		}
		return string(answer), nil
	}

	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read prompt response: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
