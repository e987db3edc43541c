package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"SessionChat/internal/backend"
	"SessionChat/internal/message"
	"SessionChat/internal/store"
)

// repl is the terminal front end of one ChatBot
type repl struct {
	cb      *ChatBot
	scanner *bufio.Scanner
	out     io.Writer
	listed  []store.SessionSummary
}

// Run starts the chat bot on a terminal. It returns when in is exhausted or
// the user quits.
func (cb *ChatBot) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	r := &repl{cb: cb, scanner: bufio.NewScanner(in), out: out}

	fmt.Fprintln(out, "=== SessionChat ===")
	fmt.Fprintf(out, "Backend: %s\n", cb.backend.Name())

	for {
		if !r.login(ctx) {
			break
		}
		r.printSessions(ctx)
		fmt.Fprintln(out, "Type /new <name> or /switch <n|id> to start, /help for commands")
		fmt.Fprintln(out)

		quit, loggedOut := r.chat(ctx)
		if quit || !loggedOut {
			break
		}
	}

	fmt.Fprintln(out, "Goodbye!")
	return r.scanner.Err()
}

// login prompts for a key until one is accepted; false means input ended
func (r *repl) login(ctx context.Context) bool {
	envKey := ""
	if name := r.cb.config.APIKeyEnv(); name != "" {
		envKey = os.Getenv(name)
	}

	for {
		if envKey != "" {
			fmt.Fprint(r.out, "API key [from environment]: ")
		} else {
			fmt.Fprint(r.out, "API key: ")
		}
		if !r.scanner.Scan() {
			return false
		}
		key := strings.TrimSpace(r.scanner.Text())
		if key == "" {
			key = envKey
		}
		if key == "/quit" || key == "/exit" {
			return false
		}
		if key == "" {
			fmt.Fprintln(r.out, "An API key is required.")
			continue
		}

		if err := r.cb.Login(ctx, key); err != nil {
			fmt.Fprintf(r.out, "Login failed: %v\n", err)
			continue
		}
		fmt.Fprintln(r.out, "Logged in.")
		return true
	}
}

// chat reads messages and commands until quit, logout or end of input
func (r *repl) chat(ctx context.Context) (quit, loggedOut bool) {
	for {
		fmt.Fprint(r.out, "You: ")
		if !r.scanner.Scan() {
			return true, false
		}

		input := strings.TrimSpace(r.scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			quit, loggedOut, err := r.handleCommand(ctx, input)
			if err != nil {
				fmt.Fprintf(r.out, "Error: %v\n", err)
				r.cb.logger.Error("command error", "error", err)
			}
			if quit || loggedOut {
				return quit, loggedOut
			}
			continue
		}

		reply, err := r.cb.Send(ctx, input)
		if err != nil {
			r.reportTurnError(err)
			continue
		}
		fmt.Fprintf(r.out, "Bot: %s\n\n", reply.Content)
	}
}

func (r *repl) reportTurnError(err error) {
	fmt.Fprintf(r.out, "Error: %v\n", err)
	if r.cb.Pending() {
		fmt.Fprintln(r.out, "Your message was not saved. Use /retry to send it again.")
	}
	r.cb.logger.Error("failed to send message", "error", err)
}

// handleCommand handles special commands
func (r *repl) handleCommand(ctx context.Context, cmd string) (quit, loggedOut bool, err error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, false, nil
	}

	switch parts[0] {
	case "/quit", "/exit":
		return true, false, nil

	case "/logout":
		r.cb.Logout()
		r.listed = nil
		fmt.Fprintln(r.out, "Logged out.")
		return false, true, nil

	case "/sessions":
		r.printSessions(ctx)

	case "/new":
		name := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))
		if name == "" {
			return false, false, fmt.Errorf("usage: /new <name>")
		}
		id, err := r.cb.NewSession(ctx, name)
		if err != nil {
			return false, false, err
		}
		fmt.Fprintf(r.out, "Started new session %q (%s)\n", name, id)

	case "/switch":
		if len(parts) < 2 {
			return false, false, fmt.Errorf("usage: /switch <n|id>")
		}
		id := parts[1]
		if n, convErr := strconv.Atoi(id); convErr == nil {
			if n < 1 || n > len(r.listed) {
				return false, false, fmt.Errorf("no session number %d, run /sessions first", n)
			}
			id = r.listed[n-1].ID
		}
		if err := r.cb.SwitchSession(ctx, id); err != nil {
			return false, false, err
		}
		_, name := r.cb.Active()
		fmt.Fprintf(r.out, "Switched to session %q\n", name)
		r.printHistory()

	case "/history":
		r.printHistory()

	case "/retry":
		reply, err := r.cb.Retry(ctx)
		if err != nil {
			if errors.Is(err, ErrNothingPending) {
				return false, false, err
			}
			r.reportTurnError(err)
			return false, false, nil
		}
		fmt.Fprintf(r.out, "Bot: %s\n\n", reply.Content)

	case "/models":
		ollama, ok := r.cb.backend.(*backend.Ollama)
		if !ok {
			return false, false, fmt.Errorf("model listing requires the ollama backend")
		}
		models, err := ollama.ListModels(ctx)
		if err != nil {
			return false, false, fmt.Errorf("failed to list Ollama models: %w", err)
		}
		fmt.Fprintln(r.out, "\nAvailable Ollama models:")
		for i, model := range models {
			sizeGB := float64(model.Size) / (1024 * 1024 * 1024)
			current := ""
			if model.Name == ollama.Model() {
				current = " (current)"
			}
			fmt.Fprintf(r.out, "%d. %s - %.2f GB%s\n", i+1, model.Name, sizeGB, current)
		}
		fmt.Fprintln(r.out)

	case "/help":
		fmt.Fprintln(r.out, "Available commands:")
		fmt.Fprintln(r.out, "  /sessions         - List your sessions")
		fmt.Fprintln(r.out, "  /new <name>       - Start a new session")
		fmt.Fprintln(r.out, "  /switch <n|id>    - Continue a session by list number or id")
		fmt.Fprintln(r.out, "  /history          - Show the active conversation")
		fmt.Fprintln(r.out, "  /retry            - Resend the last unanswered message")
		fmt.Fprintln(r.out, "  /models           - List available Ollama models")
		fmt.Fprintln(r.out, "  /logout           - Forget the API key")
		fmt.Fprintln(r.out, "  /quit, /exit      - Exit the chatbot")
		fmt.Fprintln(r.out, "  /help             - Show this help message")

	default:
		return false, false, fmt.Errorf("unknown command %s, try /help", parts[0])
	}
	return false, false, nil
}

func (r *repl) printSessions(ctx context.Context) {
	sessions, err := r.cb.Sessions(ctx)
	if err != nil {
		fmt.Fprintf(r.out, "Error: %v\n", err)
		return
	}
	r.listed = sessions
	if len(sessions) == 0 {
		fmt.Fprintln(r.out, "No sessions yet.")
		return
	}
	fmt.Fprintln(r.out, "\nYour sessions:")
	for i, s := range sessions {
		fmt.Fprintf(r.out, "%d. %s (%s)\n", i+1, s.Name, s.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(r.out)
}

// printHistory shows the conversation without system messages
func (r *repl) printHistory() {
	for _, m := range r.cb.Conversation() {
		switch m.Kind {
		case message.KindSystem:
			continue
		case message.KindHuman:
			fmt.Fprintf(r.out, "You: %s\n", m.Content)
		case message.KindAssistant:
			fmt.Fprintf(r.out, "Bot: %s\n", m.Content)
		case message.KindTool, message.KindFunction:
			fmt.Fprintf(r.out, "[%s] %s\n", m.Kind, m.Content)
		}
	}
	if r.cb.Pending() {
		fmt.Fprintln(r.out, "(last message not sent, use /retry)")
	}
	fmt.Fprintln(r.out)
}
