// Command execution for CLI commands.
//
// Information Hiding:
// - REPL loop and slash-command dispatch hidden
// - Streaming event rendering hidden
// - User-facing error formatting centralized

package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/richinex/companion/chat"
	"github.com/richinex/companion/storage"
)

const timeLayout = "2006-01-02 15:04"

// Chat runs an interactive session until EOF or /exit.
func (a *App) Chat(ctx context.Context, stream bool) error {
	status := a.Orchestrator.Status(a.Session)
	fmt.Fprintf(a.Out, "Companion (%s, model %s, persona %s)\n", status.Provider, status.Model, status.Persona)
	fmt.Fprintln(a.Out, "Type /help for commands, /exit to quit.")
	fmt.Fprintln(a.Out)

	scanner := bufio.NewScanner(a.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(a.Out, "> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			break
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.command(ctx, line)
			if err != nil {
				a.printError(err)
			}
			if quit {
				break
			}
			continue
		}

		if err := a.Send(ctx, chat.Request{Message: line}, stream); err != nil {
			a.printError(err)
		}
		fmt.Fprintln(a.Out)
	}
	return scanner.Err()
}

// Send runs one turn and writes the reply. Ctrl-C during a turn abandons
// only that turn.
func (a *App) Send(ctx context.Context, req chat.Request, stream bool) error {
	turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	if !stream {
		reply, err := a.Orchestrator.Generate(turnCtx, a.Session, req)
		if err != nil {
			return err
		}
		if a.JSON {
			return a.printJSON(reply)
		}
		fmt.Fprintln(a.Out, reply.Message)
		return nil
	}

	s, err := a.Orchestrator.Stream(turnCtx, a.Session, req)
	if err != nil {
		return err
	}
	for ev := range s.Events {
		switch ev.Type {
		case chat.EventText:
			fmt.Fprint(a.Out, ev.Text)
		case chat.EventDone:
			fmt.Fprintln(a.Out)
			return nil
		case chat.EventError:
			fmt.Fprintln(a.Out)
			return ev.Err
		}
	}
	if turnCtx.Err() != nil && ctx.Err() == nil {
		fmt.Fprintln(a.Out, "\n[interrupted]")
	}
	return nil
}

// command handles a slash command. quit reports whether the REPL should end.
func (a *App) command(ctx context.Context, line string) (quit bool, err error) {
	name, arg, _ := strings.Cut(strings.TrimPrefix(line, "/"), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case "exit", "quit":
		return true, nil
	case "help":
		a.printHelp()
	case "new":
		return false, a.NewConversation(ctx)
	case "list":
		return false, a.ListConversations()
	case "open":
		if arg == "" {
			return false, errors.New("usage: /open <conversation-id>")
		}
		return false, a.ShowConversation(arg)
	case "delete":
		if arg == "" {
			current, ok := a.Session.Store.Current()
			if !ok {
				return false, errors.New("usage: /delete <conversation-id>")
			}
			arg = current
		}
		return false, a.DeleteConversation(ctx, arg)
	case "clear":
		return false, a.ClearConversation(ctx, arg)
	case "history":
		return false, a.History(arg)
	case "persona":
		if arg == "" {
			return false, a.ListPersonas()
		}
		return false, a.SetPersona(arg)
	case "model":
		if arg == "" {
			return false, a.ListModels()
		}
		return false, a.SetModel(arg)
	case "status":
		return false, a.Status()
	default:
		return false, fmt.Errorf("unknown command /%s (type /help)", name)
	}
	return false, nil
}

func (a *App) printHelp() {
	fmt.Fprintln(a.Out, `Commands:
  /new              start a new conversation
  /list             list conversations
  /open <id>        switch to a conversation and show it
  /delete [id]      delete a conversation (default: current)
  /clear [id]       clear messages (default: current)
  /history [id]     show messages (default: current)
  /persona [id]     list personas or switch persona
  /model [id]       list models or switch model
  /status           show session status
  /exit             quit`)
}

// ListPersonas prints the persona catalog.
func (a *App) ListPersonas() error {
	list := a.Orchestrator.ListPersonas(a.Session)
	if a.JSON {
		return a.printJSON(list)
	}
	for _, p := range list.Personas {
		fmt.Fprintf(a.Out, "%s %-10s %s - %s\n", marker(p.ID == list.Current), p.ID, p.Name, p.Description)
	}
	return nil
}

// SetPersona switches the session persona.
func (a *App) SetPersona(id string) error {
	if err := a.Orchestrator.SetPersona(a.Session, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Persona set to %s\n", id)
	return nil
}

// ListModels prints the model allow-list.
func (a *App) ListModels() error {
	list := a.Orchestrator.ListModels(a.Session)
	if a.JSON {
		return a.printJSON(list)
	}
	for _, m := range list.Models {
		fmt.Fprintf(a.Out, "%s %s\n", marker(m == list.Current), m)
	}
	return nil
}

// SetModel switches the session model.
func (a *App) SetModel(id string) error {
	if err := a.Orchestrator.SetModel(a.Session, id); err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "Model set to %s\n", id)
	return nil
}

// ListConversations prints conversation summaries, most recent first.
func (a *App) ListConversations() error {
	list := a.Orchestrator.ListConversations(a.Session)
	if a.JSON {
		return a.printJSON(list)
	}
	if len(list.Conversations) == 0 {
		fmt.Fprintln(a.Out, "No conversations yet.")
		return nil
	}
	for _, c := range list.Conversations {
		fmt.Fprintf(a.Out, "%s %s  %s  %s\n", marker(c.ID == list.Current), c.ID, c.UpdatedAt.Local().Format(timeLayout), c.Title)
	}
	return nil
}

// NewConversation starts an empty conversation and makes it current.
func (a *App) NewConversation(ctx context.Context) error {
	id := a.Orchestrator.CreateConversation(ctx, a.Session)
	if a.JSON {
		return a.printJSON(map[string]string{"conversation_id": id})
	}
	fmt.Fprintf(a.Out, "Started conversation %s\n", id)
	return nil
}

// ShowConversation makes id current and prints it.
func (a *App) ShowConversation(id string) error {
	view, err := a.Orchestrator.GetConversation(a.Session, id)
	if err != nil {
		return err
	}
	if a.JSON {
		return a.printJSON(view)
	}
	fmt.Fprintf(a.Out, "%s (%s)\n", view.Title, view.ConversationID)
	a.printMessages(view.Messages)
	return nil
}

// History prints the messages of id, or of the current conversation.
func (a *App) History(id string) error {
	history, err := a.Orchestrator.History(a.Session, id)
	if err != nil {
		return err
	}
	if a.JSON {
		return a.printJSON(history)
	}
	if len(history) == 0 {
		fmt.Fprintln(a.Out, "No messages.")
		return nil
	}
	a.printMessages(history)
	return nil
}

// DeleteConversation removes id and reports the new current conversation.
func (a *App) DeleteConversation(ctx context.Context, id string) error {
	current, err := a.Orchestrator.DeleteConversation(ctx, a.Session, id)
	if err != nil {
		return err
	}
	if a.JSON {
		return a.printJSON(map[string]string{"deleted": id, "current_conversation": current})
	}
	fmt.Fprintf(a.Out, "Deleted conversation %s\n", id)
	if current != "" {
		fmt.Fprintf(a.Out, "Current conversation: %s\n", current)
	}
	return nil
}

// ClearConversation empties id, or the current conversation.
func (a *App) ClearConversation(ctx context.Context, id string) error {
	if err := a.Orchestrator.ClearHistory(ctx, a.Session, id); err != nil {
		return err
	}
	fmt.Fprintln(a.Out, "Conversation cleared.")
	return nil
}

// Status prints session selections and persistence health.
func (a *App) Status() error {
	status := a.Orchestrator.Status(a.Session)
	if a.JSON {
		return a.printJSON(status)
	}
	fmt.Fprintf(a.Out, "Session:       %s\n", status.SessionID)
	fmt.Fprintf(a.Out, "Provider:      %s\n", status.Provider)
	fmt.Fprintf(a.Out, "Model:         %s\n", status.Model)
	fmt.Fprintf(a.Out, "Persona:       %s\n", status.Persona)
	fmt.Fprintf(a.Out, "Conversations: %d\n", status.Conversations)
	if status.Conversation != "" {
		fmt.Fprintf(a.Out, "Current:       %s\n", status.Conversation)
	}
	a.printPersistence(status.Persistence)
	return nil
}

// Health prints process liveness. It needs no settings, provider or store.
func Health(w io.Writer, asJSON bool) error {
	health := chat.Liveness()
	if asJSON {
		return writeJSON(w, health)
	}
	_, err := fmt.Fprintln(w, health.Status)
	return err
}

func (a *App) printPersistence(p storage.PersistStatus) {
	state := "ok"
	if !p.Healthy() {
		state = fmt.Sprintf("failing (%d consecutive): %s", p.ConsecutiveFailures, p.LastError)
	}
	fmt.Fprintf(a.Out, "Persistence:   %s, %s\n", p.Backend, state)
	if !p.LastSuccess.IsZero() {
		fmt.Fprintf(a.Out, "Last saved:    %s\n", p.LastSuccess.Local().Format(time.RFC3339))
	}
}

func (a *App) printMessages(messages []storage.Message) {
	for _, m := range messages {
		fmt.Fprintf(a.Out, "[%s] %s: %s\n", m.Timestamp.Local().Format(timeLayout), m.Role, m.Content)
	}
}

func (a *App) printJSON(v any) error {
	return writeJSON(a.Out, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError shows the user-safe message; the cause only with --verbose.
func (a *App) printError(err error) {
	var ce *chat.Error
	if !errors.As(err, &ce) {
		fmt.Fprintf(a.Err, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(a.Err, "Error: %s\n", ce.Message)
	if a.Verbose {
		if detail := ce.Detail(); detail != "" {
			fmt.Fprintf(a.Err, "  cause: %s\n", detail)
		}
	}
}

func marker(current bool) string {
	if current {
		return "*"
	}
	return " "
}
