package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/igor04091968/sing-l2tp/logger"
	"github.com/igor04091968/sing-l2tp/service"
)

// Telegram rejects longer messages.
const maxMessageLen = 4000

// AppServices defines the interface the bot needs to interact with the main app
type AppServices interface {
	GetLifecycle() *service.LifecycleService
	GetLogs(limit int, level string) []string
}

var (
	adminIDs   = make(map[int64]bool)
	services   AppServices
	currentBot *bot.Bot
)

// Start initializes and starts the Telegram bot. It blocks until ctx is done.
func Start(ctx context.Context, config *Config, appServices AppServices) {
	if !config.Enabled || config.BotToken == "" {
		logger.Info("Telegram bot is disabled or token is not configured.")
		return
	}

	services = appServices

	for _, id := range config.AdminUserIDs {
		adminIDs[id] = true
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(handler),
	}

	b, err := bot.New(config.BotToken, opts...)
	if err != nil {
		logger.Error("Error creating Telegram bot: ", err)
		return
	}
	currentBot = b

	logger.Info("Telegram bot started.")
	b.Start(ctx)
}

func Stop() {
	if currentBot != nil {
		_, _ = currentBot.Close(context.Background())
		currentBot = nil
	}
}

func handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !isAdmin(update.Message.From.ID) {
		send(ctx, b, update.Message.Chat.ID, "You are not authorized to use this bot.")
		return
	}

	if strings.HasPrefix(update.Message.Text, "/") {
		command, args := parseCommand(update.Message.Text)
		send(ctx, b, update.Message.Chat.ID, handleCommand(ctx, services, command, args))
	}
}

func send(ctx context.Context, b *bot.Bot, chatID int64, text string) {
	text = truncate(text, maxMessageLen)
	if _, err := b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		logger.Warning("telegram send: ", err)
	}
}

// truncate cuts text to at most n bytes without splitting a UTF-8
// sequence and marks the cut.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return text[:n] + "\n..."
}

func isAdmin(userID int64) bool {
	_, ok := adminIDs[userID]
	return ok
}

const helpText = "Available commands:\n" +
	"/tunnels\n" +
	"/status <name>\n" +
	"/apply\n" +
	"/start <name> [recreate]\n" +
	"/stop <name>\n" +
	"/forwards <name>\n" +
	"/addports <name> <port,port,...>\n" +
	"/delports <name> <port,port,...>\n" +
	"/logs [limit] [level]"

// handleCommand runs one bot command and returns the reply text.
func handleCommand(ctx context.Context, app AppServices, command string, args []string) string {
	lifecycle := app.GetLifecycle()

	switch command {
	case "/start":
		if len(args) == 0 {
			return "Welcome to the sing-l2tp bot. Send /help to see available commands."
		}
		report, err := lifecycle.Start(ctx, args[0], len(args) > 1 && args[1] == "recreate")
		return reportText(report, err)
	case "/help":
		return helpText
	case "/tunnels":
		return handleListTunnels(lifecycle)
	case "/status":
		if len(args) != 1 {
			return "Usage: /status <name>"
		}
		return handleStatus(ctx, lifecycle, args[0])
	case "/apply":
		report := lifecycle.Apply(ctx)
		return reportText(report, nil)
	case "/stop":
		if len(args) != 1 {
			return "Usage: /stop <name>"
		}
		out, err := lifecycle.Stop(ctx, args[0])
		if err != nil {
			return fmt.Sprintf("%s\nStop failed: %v", out, err)
		}
		return out + "\nTunnel stopped."
	case "/forwards":
		if len(args) != 1 {
			return "Usage: /forwards <name>"
		}
		return handleForwards(ctx, lifecycle, args[0])
	case "/addports", "/delports":
		if len(args) != 2 {
			return fmt.Sprintf("Usage: %s <name> <port,port,...>", command)
		}
		var report *service.BatchReport
		var err error
		if command == "/addports" {
			report, err = lifecycle.AddForwards(ctx, args[0], args[1])
		} else {
			report, err = lifecycle.RemoveForwards(ctx, args[0], args[1])
		}
		if err != nil {
			return err.Error()
		}
		return report.String()
	case "/logs":
		return handleLogs(app, args)
	default:
		return "Unknown command. Send /help to see available commands."
	}
}

func reportText(report *service.ApplyReport, err error) string {
	var b strings.Builder
	if report != nil {
		b.WriteString(report.String())
	}
	if err != nil {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Error: " + err.Error())
	}
	return b.String()
}

func handleListTunnels(lifecycle *service.LifecycleService) string {
	names, err := lifecycle.Store().List()
	if err != nil {
		logger.Error("Error listing tunnels: ", err)
		return "Error listing tunnels."
	}
	if len(names) == 0 {
		return "No tunnels configured."
	}

	var response strings.Builder
	response.WriteString("Configured tunnels:\n")
	for _, name := range names {
		cfg, err := lifecycle.Store().Get(name)
		if err != nil || cfg == nil {
			continue
		}
		state := "not configured"
		if cfg.IsConfigured() {
			state = fmt.Sprintf("%s -> %s", cfg.LocalIP, cfg.RemoteIP)
		}
		response.WriteString(fmt.Sprintf("\n- %s (%s): %s, %d port(s)", cfg.Name, cfg.InterfaceName, state, len(cfg.ForwardedPorts)))
	}
	return response.String()
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func orNotSet(v string) string {
	if v == "" {
		return "Not set"
	}
	return v
}

func handleStatus(ctx context.Context, lifecycle *service.LifecycleService, name string) string {
	st, forwards, err := lifecycle.Status(ctx, name)
	if err != nil {
		return err.Error()
	}
	var response strings.Builder
	response.WriteString(fmt.Sprintf("Tunnel %s\n", st.TunnelName))
	response.WriteString(fmt.Sprintf("Configured: %s\n", yesNo(st.Configured)))
	response.WriteString(fmt.Sprintf("Local IP: %s\n", orNotSet(st.LocalIP)))
	response.WriteString(fmt.Sprintf("Remote IP: %s\n", orNotSet(st.RemoteIP)))
	response.WriteString(fmt.Sprintf("Interface: %s\n", orNotSet(st.InterfaceName)))
	response.WriteString(fmt.Sprintf("Tunnel exists: %s\n", yesNo(st.TunnelExists)))
	response.WriteString(fmt.Sprintf("Session exists: %s\n", yesNo(st.SessionExists)))
	response.WriteString(fmt.Sprintf("Interface up: %s\n", yesNo(st.InterfaceUp)))
	response.WriteString(fmt.Sprintf("Interface IP: %s", orNotSet(st.InterfaceIP)))
	if len(forwards) > 0 {
		response.WriteString(fmt.Sprintf("\nForwards: %d", len(forwards)))
	}
	return response.String()
}

func handleForwards(ctx context.Context, lifecycle *service.LifecycleService, name string) string {
	cfg, err := lifecycle.Store().Get(name)
	if err != nil {
		return err.Error()
	}
	if cfg == nil {
		return fmt.Sprintf("Tunnel '%s' not found.", name)
	}
	units := lifecycle.Forwards(cfg).ListForwards(ctx)
	if len(units) == 0 {
		return "No port forwards configured"
	}
	var response strings.Builder
	for _, u := range units {
		response.WriteString(fmt.Sprintf("%d -> %s: %s, %s\n", u.Port, u.Remote, u.Status, u.Enabled))
	}
	return strings.TrimRight(response.String(), "\n")
}

func handleLogs(app AppServices, args []string) string {
	limit := 10
	level := "debug"

	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	if len(args) > 1 {
		level = args[1]
	}

	logs := app.GetLogs(limit, level)
	if len(logs) == 0 {
		return "No logs found."
	}
	return "Logs:\n" + strings.Join(logs, "\n")
}

func parseCommand(text string) (string, []string) {
	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil
	}
	// "/status@my_bot tunnel1" in group chats
	command, _, _ := strings.Cut(parts[0], "@")
	return command, parts[1:]
}
