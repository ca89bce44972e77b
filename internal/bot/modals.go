package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/TheoCarouge/epiclegion-s/internal/notes"
	"github.com/TheoCarouge/epiclegion-s/internal/storage"
	"github.com/TheoCarouge/epiclegion-s/internal/trial"
)

// Notes flow custom ids: "notes:<action>:<kind>:<target>" where action is
// open/submit/optional/optsubmit, kind is member/external and target is the
// user id or the display name. Names may contain colons, so target is always
// the last segment and parsed with SplitN.

func notesCustomID(action string, subject trial.Subject) string {
	if linked, ok := subject.(trial.Linked); ok {
		return fmt.Sprintf("notes:%s:member:%s", action, linked.AccountID)
	}
	named := subject.(trial.Named)
	return fmt.Sprintf("notes:%s:external:%s", action, named.Name)
}

func subjectFromCustomID(kind, target string) (trial.Subject, error) {
	if kind == "member" {
		return trial.Linked{AccountID: target}, nil
	}
	return trial.NewNamed(target)
}

// canManage mirrors the original gating of the form itself: modal buttons
// demand the Manage Server permission regardless of the lead role.
func canManage(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionManageGuild != 0
}

// handleNoteForm handles the /note command: offers the button that opens the
// required-fields modal.
func (b *Bot) handleNoteForm(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	subject, err := subjectFromOptions(s, i.ApplicationCommandData().Options)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/note member:@membre` ou `/note name:<nom>`")
		return
	}

	// Name-keyed notes require an existing trial entry.
	if err := b.notes.RequireTrial(i.GuildID, subject); err != nil {
		if errors.Is(err, notes.ErrNoTrial) {
			respondEphemeral(s, i, "❌ Ce nom n'est pas dans la liste. Ajoute-le d'abord avec `/enter name:<nom>`")
			return
		}
		slog.Error("Failed to check trial entry", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: fmt.Sprintf("📝 Formulaire de notes pour %s — clique ci-dessous.", b.subjectDisplay(i.GuildID, subject)),
			Flags:   discordgo.MessageFlagsEphemeral,
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.Button{
							Label:    "Remplir le formulaire de notes",
							Style:    discordgo.PrimaryButton,
							CustomID: notesCustomID("open", subject),
						},
					},
				},
			},
		},
	})
}

// handleComponent routes button presses.
func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID

	if page, ok := strings.CutPrefix(customID, "list:page:"); ok {
		b.handleListPage(s, i, page)
		return
	}

	parts := strings.SplitN(customID, ":", 4)
	if len(parts) != 4 || parts[0] != "notes" {
		slog.Warn("Unknown component", "customID", customID)
		return
	}
	action, kind, target := parts[1], parts[2], parts[3]

	if !canManage(i) {
		respondEphemeral(s, i, "⛔ Tu dois avoir la permission **Gérer le serveur** pour remplir ce formulaire.")
		return
	}

	subject, err := subjectFromCustomID(kind, target)
	if err != nil {
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	switch action {
	case "open":
		b.openRequiredModal(s, i, subject)
	case "optional":
		b.openOptionalModal(s, i, subject)
	default:
		slog.Warn("Unknown notes action", "customID", customID)
	}
}

func textInputRow(input discordgo.TextInput) discordgo.MessageComponent {
	return discordgo.ActionsRow{Components: []discordgo.MessageComponent{input}}
}

// openRequiredModal shows the five required recruitment questions.
func (b *Bot) openRequiredModal(s *discordgo.Session, i *discordgo.InteractionCreate, subject trial.Subject) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: notesCustomID("submit", subject),
			Title:    "Notes du membre",
			Components: []discordgo.MessageComponent{
				textInputRow(discordgo.TextInput{
					CustomID:    "characters_level",
					Label:       "Combien de perso / LVL",
					Placeholder: "Ex: 3 persos / 200, 199, 180...",
					Style:       discordgo.TextInputShort,
					Required:    true,
					MaxLength:   200,
				}),
				textInputRow(discordgo.TextInput{
					CustomID:    "prev_guild_alliance",
					Label:       "Ancienne guilde / alliance",
					Placeholder: "Ex: Guilde X / Alliance Y",
					Style:       discordgo.TextInputShort,
					Required:    false,
					MaxLength:   200,
				}),
				textInputRow(discordgo.TextInput{
					CustomID:    "optimized",
					Label:       "Opti ou pas",
					Placeholder: "Ex: Opti PvP, opti PvM, en cours...",
					Style:       discordgo.TextInputShort,
					Required:    false,
					MaxLength:   200,
				}),
				textInputRow(discordgo.TextInput{
					CustomID:    "content_preference",
					Label:       "Préférence de contenu (PvP ou PvM)",
					Placeholder: "Ex: Koli, AvA, donjons, succès, farm...",
					Style:       discordgo.TextInputShort,
					Required:    true,
					MaxLength:   200,
				}),
				textInputRow(discordgo.TextInput{
					CustomID:    "objectives",
					Label:       "Objectifs / projets à venir",
					Placeholder: "Ex: Monter team, AvA régulier, succès...",
					Style:       discordgo.TextInputParagraph,
					Required:    true,
					MaxLength:   1000,
				}),
			},
		},
	})
}

// openOptionalModal shows the second-step optional questions.
func (b *Bot) openOptionalModal(s *discordgo.Session, i *discordgo.InteractionCreate, subject trial.Subject) {
	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: notesCustomID("optsubmit", subject),
			Title:    "Infos optionnelles",
			Components: []discordgo.MessageComponent{
				textInputRow(discordgo.TextInput{
					CustomID:    "age",
					Label:       "Âge (optionnel)",
					Placeholder: "Ex: 23",
					Style:       discordgo.TextInputShort,
					Required:    false,
					MaxLength:   10,
				}),
				textInputRow(discordgo.TextInput{
					CustomID:    "contribution",
					Label:       "Ce que tu amèneras à la guilde (optionnel)",
					Placeholder: "Ex: orga events, shotcaller, crafts, coaching...",
					Style:       discordgo.TextInputParagraph,
					Required:    false,
					MaxLength:   1000,
				}),
			},
		},
	})
}

// modalValues flattens submitted text inputs into custom-id keyed values.
func modalValues(data discordgo.ModalSubmitInteractionData) map[string]string {
	values := make(map[string]string)
	for _, component := range data.Components {
		row, ok := component.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, inner := range row.Components {
			if input, ok := inner.(*discordgo.TextInput); ok {
				values[input.CustomID] = strings.TrimSpace(input.Value)
			}
		}
	}
	return values
}

// handleModalSubmit stores submitted form answers.
func (b *Bot) handleModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	parts := strings.SplitN(data.CustomID, ":", 4)
	if len(parts) != 4 || parts[0] != "notes" {
		slog.Warn("Unknown modal", "customID", data.CustomID)
		return
	}
	action, kind, target := parts[1], parts[2], parts[3]

	subject, err := subjectFromCustomID(kind, target)
	if err != nil {
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}
	values := modalValues(data)

	switch action {
	case "submit":
		fields := notes.RequiredFields{
			CharactersLevel:   values["characters_level"],
			PrevGuildAlliance: values["prev_guild_alliance"],
			Optimized:         values["optimized"],
			ContentPreference: values["content_preference"],
			Objectives:        values["objectives"],
		}
		if err := b.notes.Upsert(i.GuildID, subject, fields); err != nil {
			if errors.Is(err, notes.ErrNoTrial) {
				respondEphemeral(s, i, "❌ Ce nom n'est pas dans la liste. Ajoute-le d'abord avec `/enter name:<nom>`")
				return
			}
			slog.Error("Failed to save notes", "guildID", i.GuildID, "error", err)
			respondEphemeral(s, i, "❌ Une erreur est survenue.")
			return
		}

		s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: "✅ Notes enregistrées.\nSouhaites-tu ajouter les **informations optionnelles** (Âge, Apport) ?",
				Flags:   discordgo.MessageFlagsEphemeral,
				Components: []discordgo.MessageComponent{
					discordgo.ActionsRow{
						Components: []discordgo.MessageComponent{
							discordgo.Button{
								Label:    "Ajouter infos optionnelles",
								Style:    discordgo.SecondaryButton,
								CustomID: notesCustomID("optional", subject),
							},
						},
					},
				},
			},
		})
	case "optsubmit":
		if err := b.notes.UpdateOptional(i.GuildID, subject, values["age"], values["contribution"]); err != nil {
			slog.Error("Failed to save optional notes", "guildID", i.GuildID, "error", err)
			respondEphemeral(s, i, "❌ Une erreur est survenue.")
			return
		}
		respondEphemeral(s, i, "✅ Infos optionnelles enregistrées.")
	default:
		slog.Warn("Unknown modal action", "customID", data.CustomID)
	}
}

func valOrDash(v string) string {
	if strings.TrimSpace(v) == "" {
		return "—"
	}
	return v
}

// handleNotesShow handles the /notes command
func (b *Bot) handleNotesShow(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	subject, err := subjectFromOptions(s, i.ApplicationCommandData().Options)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/notes member:@membre` ou `/notes name:<nom>`")
		return
	}

	rec, err := b.notes.Get(i.GuildID, subject)
	if errors.Is(err, storage.ErrNotFound) {
		respondWithMessage(s, i, fmt.Sprintf("ℹ️ Aucune note trouvée pour %s.", b.subjectDisplay(i.GuildID, subject)))
		return
	}
	if err != nil {
		slog.Error("Failed to fetch notes", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	title := fmt.Sprintf("Notes — %s", rec.Name)
	if linked, ok := subject.(trial.Linked); ok {
		name := linked.AccountID
		if member, err := s.State.Member(i.GuildID, linked.AccountID); err == nil && member.User != nil {
			name = member.User.Username
		}
		title = fmt.Sprintf("Notes — %s", name)
	}

	embed := &discordgo.MessageEmbed{
		Title:     title,
		Color:     0x3498db,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Combien de perso / LVL", Value: valOrDash(rec.CharactersLevel)},
			{Name: "Ancienne guilde / alliance", Value: valOrDash(rec.PrevGuildAlliance)},
			{Name: "Opti ou pas", Value: valOrDash(rec.Optimized)},
			{Name: "Préférence PvP / PvM", Value: valOrDash(rec.ContentPreference)},
			{Name: "Objectifs / projets", Value: valOrDash(rec.Objectives)},
			{Name: "Âge (optionnel)", Value: valOrDash(rec.Age), Inline: true},
			{Name: "Apport à la guilde (optionnel)", Value: valOrDash(rec.Contribution)},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Dernière mise à jour: %s", rec.UpdatedAt.Format("2006-01-02 15:04 UTC")),
		},
	}

	s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
		},
	})
}

// handleDelNotes handles the /delnotes command
func (b *Bot) handleDelNotes(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !b.requireLead(s, i) {
		return
	}

	subject, err := subjectFromOptions(s, i.ApplicationCommandData().Options)
	if errors.Is(err, trial.ErrInvalidName) {
		respondEphemeral(s, i, "⚠️ Nom invalide (vide).")
		return
	}
	if subject == nil {
		respondEphemeral(s, i, "❌ Usage : `/delnotes member:@membre` ou `/delnotes name:<nom>`")
		return
	}

	deleted, err := b.notes.Delete(i.GuildID, subject)
	if err != nil {
		slog.Error("Failed to delete notes", "guildID", i.GuildID, "error", err)
		respondEphemeral(s, i, "❌ Une erreur est survenue.")
		return
	}

	display := b.subjectDisplay(i.GuildID, subject)
	if deleted {
		respondWithMessage(s, i, fmt.Sprintf("🗑️ Notes supprimées pour %s.", display))
	} else {
		respondWithMessage(s, i, fmt.Sprintf("ℹ️ Aucune note à supprimer pour %s.", display))
	}
}
