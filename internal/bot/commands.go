package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/TheoCarouge/epiclegion-s/internal/storage"
	"github.com/TheoCarouge/epiclegion-s/internal/trial"
)

const listPageSize = 20

// memberNameOptions is the member/name option pair shared by most commands.
func memberNameOptions(autocomplete bool) []*discordgo.ApplicationCommandOption {
	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "member",
			Description: "Membre Discord (optionnel)",
			Required:    false,
		},
		{
			Type:         discordgo.ApplicationCommandOptionString,
			Name:         "name",
			Description:  "Nom texte si pas de mention (optionnel)",
			Required:     false,
			Autocomplete: autocomplete,
		},
	}
}

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "enter",
			Description: "Ajoute un joueur à la période d'essai (mention ou nom texte).",
			Options:     memberNameOptions(false),
		},
		{
			Name:        "leave",
			Description: "Retire un joueur de la liste (mention ou nom texte).",
			Options: append(memberNameOptions(true), &discordgo.ApplicationCommandOption{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "cascade_notes",
				Description: "Supprimer aussi les notes (défaut: oui)",
				Required:    false,
			}),
		},
		{
			Name:        "check",
			Description: "Vérifie la période d'essai d'un joueur.",
			Options:     memberNameOptions(true),
		},
		{
			Name:        "list",
			Description: "Affiche la liste complète (Discord + noms).",
		},
		{
			Name:        "note",
			Description: "Ouvre le formulaire de notes (mention ou nom).",
			Options:     memberNameOptions(true),
		},
		{
			Name:        "notes",
			Description: "Affiche les notes (mention ou nom).",
			Options:     memberNameOptions(true),
		},
		{
			Name:        "delnotes",
			Description: "Supprime les notes (mention ou nom).",
			Options:     memberNameOptions(true),
		},
		{
			Name:        "settrialchannel",
			Description: "Définit le salon des rappels J+14.",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Salon des rappels (laisser vide pour le salon courant)",
					Required:    false,
					ChannelTypes: []discordgo.ChannelType{
						discordgo.ChannelTypeGuildText,
					},
				},
			},
		},
		{
			Name:        "gettrialchannel",
			Description: "Affiche le salon des rappels J+14.",
		},
		{
			Name:        "checkpseudo",
			Description: "Génère le lien du profil Ankama à partir d'un pseudo (ex: pseudo#9999)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "pseudo",
					Description: "Pseudo Ankama (pseudo#9999)",
					Required:    true,
				},
			},
		},
	}
}

// registerCommands registers all slash commands with Discord
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands")

	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(
			b.session.State.User.ID,
			"", // Empty string = global command
			cmd,
		)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// subjectDisplay renders the subject for messages: mention plus username for
// linked subjects, bold name otherwise.
func (b *Bot) subjectDisplay(guildID string, subject trial.Subject) string {
	if linked, ok := subject.(trial.Linked); ok {
		return b.displayUser(guildID, linked.AccountID)
	}
	return subject.Display()
}

// handleEnter handles the /enter command
func (b *Bot) handleEnter(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	subject, err := subjectFromOptions(s, i.ApplicationCommandData().Options)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/enter member:@membre` ou `/enter name:<nom>`")
		return
	}

	if _, err := b.trials.Add(i.GuildID, subject); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			if subject.Kind() == storage.KindExternal {
				respondWithMessage(s, i, "⚠️ Ce nom existe déjà dans la liste. Choisis un autre nom.")
			} else {
				respondWithMessage(s, i, "⚠️ Ce membre est déjà dans la liste.")
			}
			return
		}
		slog.Error("Failed to add trial record", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("✅ %s ajouté (14j).", b.subjectDisplay(i.GuildID, subject)))
}

// handleLeave handles the /leave command
func (b *Bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	opts := i.ApplicationCommandData().Options
	subject, err := subjectFromOptions(s, opts)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/leave member:@membre` ou `/leave name:<nom>`")
		return
	}

	cascadeNotes := true
	for _, opt := range opts {
		if opt.Name == "cascade_notes" {
			cascadeNotes = opt.BoolValue()
		}
	}

	removed, err := b.trials.Remove(i.GuildID, subject)
	if err != nil {
		slog.Error("Failed to remove trial record", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	display := b.subjectDisplay(i.GuildID, subject)
	if !removed {
		respondWithMessage(s, i, fmt.Sprintf("ℹ️ %s n’était pas dans la liste.", display))
		return
	}

	if cascadeNotes {
		if _, err := b.notes.Delete(i.GuildID, subject); err != nil {
			slog.Error("Failed to cascade notes delete", "guildID", i.GuildID, "error", err)
		}
	}
	respondWithMessage(s, i, fmt.Sprintf("🗑️ %s a été retiré de la liste.", display))
}

// handleCheck handles the /check command
func (b *Bot) handleCheck(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	subject, err := subjectFromOptions(s, i.ApplicationCommandData().Options)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/check member:@membre` ou `/check name:<nom>`")
		return
	}

	display := b.subjectDisplay(i.GuildID, subject)
	rec, err := b.trials.Get(i.GuildID, subject)
	if errors.Is(err, storage.ErrNotFound) {
		respondWithMessage(s, i, fmt.Sprintf("ℹ️ %s n'est **pas** dans la liste.", display))
		return
	}
	if err != nil {
		slog.Error("Failed to fetch trial record", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	now := time.Now().UTC()
	since := trial.HumanizeDuration(now.Sub(rec.AddedAt))
	addedStamp := rec.AddedAt.Format("2006-01-02 15:04")
	endStamp := rec.TrialEnd.Format("2006-01-02 15:04")

	if trial.StatusAt(rec.TrialEnd, now) == trial.StatusTrialing {
		remaining := trial.HumanizeDuration(rec.TrialEnd.Sub(now))
		respondWithMessage(s, i, fmt.Sprintf(
			"👤 %s\n- Ajouté il y a **%s** (UTC: %s)\n- Fin d’essai dans **%s** (UTC: %s)\n- Statut: 🟡 **En période d’essai**",
			display, since, addedStamp, remaining, endStamp,
		))
		return
	}

	endedFor := trial.HumanizeDuration(now.Sub(rec.TrialEnd))
	respondWithMessage(s, i, fmt.Sprintf(
		"👤 %s\n- Ajouté il y a **%s** (UTC: %s)\n- Période d’essai terminée depuis **%s** (UTC: %s)\n- Statut: ✅ **Période d’essai terminée**",
		display, since, addedStamp, endedFor, endStamp,
	))
}

// buildListPages renders the guild's merged trial list into embed pages of
// listPageSize lines, grouped by status.
func (b *Bot) buildListPages(guildID, guildName string) ([]*discordgo.MessageEmbed, error) {
	records, err := b.trials.ListAll(guildID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var trialing, completed []string
	for _, rec := range records {
		display := fmt.Sprintf("**%s**", rec.Name)
		if rec.Kind == storage.KindMember {
			display = b.displayUser(guildID, rec.UserID)
		}
		status, delta := trial.StatusLine(rec.AddedAt, rec.TrialEnd, now)
		line := fmt.Sprintf("%s — %s — %s", display, status, delta)
		if status == trial.StatusTrialing {
			trialing = append(trialing, line)
		} else {
			completed = append(completed, line)
		}
	}

	var lines []string
	if len(trialing) > 0 {
		lines = append(lines, "**🟡 En période d’essai**")
		for _, l := range trialing {
			lines = append(lines, "- "+l)
		}
	}
	if len(completed) > 0 {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, "**✅ Période d’essai terminée**")
		for _, l := range completed {
			lines = append(lines, "- "+l)
		}
	}
	if len(lines) == 0 {
		return nil, nil
	}

	var pages []*discordgo.MessageEmbed
	total := (len(lines) + listPageSize - 1) / listPageSize
	for start := 0; start < len(lines); start += listPageSize {
		end := start + listPageSize
		if end > len(lines) {
			end = len(lines)
		}
		pages = append(pages, &discordgo.MessageEmbed{
			Title:       fmt.Sprintf("📋 Liste complète — %s", guildName),
			Description: strings.Join(lines[start:end], "\n"),
			Color:       0x1abc9c,
			Footer: &discordgo.MessageEmbedFooter{
				Text: fmt.Sprintf("Page %d/%d", len(pages)+1, total),
			},
			Timestamp: now.Format(time.RFC3339),
		})
	}
	return pages, nil
}

// listPageButtons builds the pagination row. Page indices ride in the custom
// ids; the page content is rebuilt from the store on every press.
func listPageButtons(page, total int) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "◀ Précédent",
					Style:    discordgo.SecondaryButton,
					CustomID: fmt.Sprintf("list:page:%d", page-1),
					Disabled: page <= 0,
				},
				discordgo.Button{
					Label:    "Suivant ▶",
					Style:    discordgo.PrimaryButton,
					CustomID: fmt.Sprintf("list:page:%d", page+1),
					Disabled: page >= total-1,
				},
			},
		},
	}
}

func (b *Bot) guildName(guildID string) string {
	guild, err := b.session.State.Guild(guildID)
	if err != nil {
		return guildID
	}
	return guild.Name
}

// handleList handles the /list command
func (b *Bot) handleList(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	pages, err := b.buildListPages(i.GuildID, b.guildName(i.GuildID))
	if err != nil {
		slog.Error("Failed to build trial list", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}
	if len(pages) == 0 {
		respondWithMessage(s, i, "Aucun inscrit dans la liste pour ce serveur.")
		return
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{pages[0]},
			Components: listPageButtons(0, len(pages)),
		},
	})
}

// handleListPage flips the list message to the requested page.
func (b *Bot) handleListPage(s *discordgo.Session, i *discordgo.InteractionCreate, pageStr string) {
	page, err := strconv.Atoi(pageStr)
	if err != nil || page < 0 {
		page = 0
	}

	pages, err := b.buildListPages(i.GuildID, b.guildName(i.GuildID))
	if err != nil || len(pages) == 0 {
		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredMessageUpdate,
		})
		return
	}
	if page >= len(pages) {
		page = len(pages) - 1
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Embeds:     []*discordgo.MessageEmbed{pages[page]},
			Components: listPageButtons(page, len(pages)),
		},
	})
}

// handleSetTrialChannel handles the /settrialchannel command
func (b *Bot) handleSetTrialChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	channelID := i.ChannelID
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "channel" {
			channelID = opt.ChannelValue(s).ID
		}
	}

	settings := &storage.GuildSettings{
		GuildID:        i.GuildID,
		TrialChannelID: channelID,
	}
	if err := b.repo.UpsertGuildSettings(settings); err != nil {
		slog.Error("Failed to save guild settings", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("🛠️ Salon des rappels défini sur <#%s>", channelID))
}

// handleGetTrialChannel handles the /gettrialchannel command
func (b *Bot) handleGetTrialChannel(s *discordgo.Session, i *discordgo.InteractionCreate) {
	settings, err := b.repo.GetGuildSettings(i.GuildID)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && settings.TrialChannelID == "") {
		respondWithMessage(s, i, "Aucun salon de rappel configuré. Utilise `/settrialchannel`.")
		return
	}
	if err != nil {
		slog.Error("Failed to read guild settings", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	respondWithMessage(s, i, fmt.Sprintf("Salon des rappels: <#%s>", settings.TrialChannelID))
}

// handleCheckPseudo handles the /checkpseudo command
func (b *Bot) handleCheckPseudo(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pseudo := strings.TrimSpace(i.ApplicationCommandData().Options[0].StringValue())
	if pseudo == "" || !strings.Contains(pseudo, "#") {
		respondEphemeral(s, i, "❌ Format invalide. Utilise la commande ainsi : `/checkpseudo pseudo#9999`")
		return
	}

	safePseudo := strings.ReplaceAll(pseudo, "#", "-")
	respondWithMessage(s, i, fmt.Sprintf("🔗 Profil Ankama : <https://account.ankama.com/fr/profil-ankama/%s>", safePseudo))
}

// handleAutocomplete suggests stored external names for the focused name
// option.
func (b *Bot) handleAutocomplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	var current string
	for _, opt := range i.ApplicationCommandData().Options {
		if opt.Name == "name" && opt.Focused {
			current = opt.StringValue()
		}
	}

	names, err := b.repo.SearchExternalNames(i.GuildID, current, 25)
	if err != nil {
		slog.Error("Failed to search external names", "guildID", i.GuildID, "error", err)
		names = nil
	}

	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, name := range names {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  name,
			Value: name,
		})
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionApplicationCommandAutocompleteResult,
		Data: &discordgo.InteractionResponseData{
			Choices: choices,
		},
	})
}
