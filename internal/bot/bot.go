package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/TheoCarouge/epiclegion-s/internal/config"
	"github.com/TheoCarouge/epiclegion-s/internal/notes"
	"github.com/TheoCarouge/epiclegion-s/internal/storage"
	"github.com/TheoCarouge/epiclegion-s/internal/sweep"
	"github.com/TheoCarouge/epiclegion-s/internal/trial"
)

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	trials   *trial.Manager
	notes    *notes.Manager
	sweep    *sweep.Sweep
	commands []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Member resolution in reminders and /check needs the members intent
	session.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentsGuildMembers

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	b := &Bot{
		config:  cfg,
		session: session,
		repo:    repo,
		trials:  trial.NewManager(repo),
		notes:   notes.NewManager(repo),
	}

	// Register command handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and starts background tasks
func (b *Bot) Start(ctx context.Context) error {
	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	// Start the trial sweep
	interval := time.Duration(b.config.SweepIntervalMinutes) * time.Minute
	b.sweep = sweep.New(b.repo, b.trials, &sessionMessenger{session: b.session}, interval)
	go b.sweep.Start(ctx)

	return nil
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	// Stop the sweep
	if b.sweep != nil {
		b.sweep.Stop()
	}

	// Close storage
	if b.repo != nil {
		b.repo.Close()
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands, autocomplete, buttons and modal
// submissions. A panic inside one handler is converted to a generic failure
// notice; one bad interaction must never take the process down.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic in interaction handler", "panic", r)
			respondEphemeral(s, i, "❌ Une erreur est survenue.")
		}
	}()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionApplicationCommandAutocomplete:
		b.handleAutocomplete(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModalSubmit(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "enter":
		b.handleEnter(s, i)
	case "leave":
		b.handleLeave(s, i)
	case "check":
		b.handleCheck(s, i)
	case "list":
		b.handleList(s, i)
	case "note":
		b.handleNoteForm(s, i)
	case "notes":
		b.handleNotesShow(s, i)
	case "delnotes":
		b.handleDelNotes(s, i)
	case "settrialchannel":
		b.handleSetTrialChannel(s, i)
	case "gettrialchannel":
		b.handleGetTrialChannel(s, i)
	case "checkpseudo":
		b.handleCheckPseudo(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

// isLead reports whether the caller passes the management gate: the lead role
// when one is configured, the Manage Server permission otherwise.
func (b *Bot) isLead(i *discordgo.InteractionCreate) bool {
	if i.Member == nil {
		return false
	}
	if b.config.LeadRoleID != "" {
		for _, roleID := range i.Member.Roles {
			if roleID == b.config.LeadRoleID {
				return true
			}
		}
		return false
	}
	return i.Member.Permissions&discordgo.PermissionManageGuild != 0
}

// requireLead responds with the permission-denied notice when the caller is
// not a lead. Returns true when the command may proceed.
func (b *Bot) requireLead(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if b.isLead(i) {
		return true
	}
	respondEphemeral(s, i, "⛔ Commande réservée aux **Leads**.")
	return false
}

// displayUser renders a member as mention plus username when the member is
// still resolvable, raw mention otherwise.
func (b *Bot) displayUser(guildID, userID string) string {
	member, err := b.session.State.Member(guildID, userID)
	if err != nil || member.User == nil {
		return fmt.Sprintf("<@%s>", userID)
	}
	return fmt.Sprintf("%s (%s)", member.User.Mention(), member.User.Username)
}

// Helper functions

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// subjectFromOptions builds the trial subject from the member/name option
// pair shared by most commands. Returns nil when neither was supplied.
func subjectFromOptions(s *discordgo.Session, opts []*discordgo.ApplicationCommandInteractionDataOption) (trial.Subject, error) {
	for _, opt := range opts {
		switch opt.Name {
		case "member":
			user := opt.UserValue(s)
			if user != nil {
				return trial.Linked{AccountID: user.ID}, nil
			}
		case "name":
			if strings.TrimSpace(opt.StringValue()) == "" {
				continue
			}
			return trial.NewNamed(opt.StringValue())
		}
	}
	return nil, nil
}
