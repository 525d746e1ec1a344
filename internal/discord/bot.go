package discord

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"footpredict/internal/model"
	"footpredict/internal/publish"

	"github.com/bwmarrin/discordgo"
)

const embedColor = 0x1E8C3A

// Bot wraps a Discord session and channel for prediction announcements and commands.
type Bot struct {
	session *discordgo.Session
	// channelID is where predictions are posted
	channelID string
	mu        sync.Mutex
}

// Config for the Discord bot.
type Config struct {
	Token             string
	AnnounceChannelID string
}

// NewBot creates a Discord bot. Token must be non-empty.
func NewBot(cfg Config) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token required")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	return &Bot{session: s, channelID: cfg.AnnounceChannelID}, nil
}

// PredictionTitle returns the embed title, e.g. "Arsenal vs Chelsea".
func PredictionTitle(p model.Prediction) string {
	title := p.Home + " vs " + p.Away
	if p.Competition != "" {
		title += " (" + p.Competition + ")"
	}
	return title
}

// PredictionDescription returns the embed description text for a prediction.
func PredictionDescription(p model.Prediction) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s** %s / Draw %s / **%s** %s\n", p.Home, pct(p.HomeWin), pct(p.Draw), p.Away, pct(p.AwayWin))
	fmt.Fprintf(&b, "Expected goals: %.2f - %.2f\n", p.ExpectedHomeGoals, p.ExpectedAwayGoals)
	fmt.Fprintf(&b, "Most likely score: **%s**\n", p.MostLikelyScore)
	fmt.Fprintf(&b, "Over 2.5: %s | Both teams score: %s\n", pct(p.Over25), pct(p.BothTeamsScore))
	fmt.Fprintf(&b, "Pick: **%s** (%s)", outcomeLabel(p), pct(p.Confidence))
	if p.Cold() {
		b.WriteString("\n_Limited data: at least one team is rated at league average._")
	}
	return b.String()
}

func outcomeLabel(p model.Prediction) string {
	switch p.Outcome {
	case model.OutcomeHome:
		return p.Home
	case model.OutcomeAway:
		return p.Away
	default:
		return "Draw"
	}
}

func pct(v float64) string {
	return fmt.Sprintf("%.0f%%", v*100)
}

// ModelInfoDescription renders the /model command reply.
func ModelInfoDescription(info *model.Info) string {
	if info == nil {
		return "No model has been trained yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "**Model v%d** trained %s on %d matches, %d teams\n",
		info.Version, info.TrainedAt.UTC().Format(time.RFC3339), info.Diagnostics.Matches, info.TeamCount)
	fmt.Fprintf(&b, "Home advantage x%.2f | avg goals %.2f - %.2f\n",
		math.Exp(info.League.HomeAdvantage), info.League.AvgHomeGoals, info.League.AvgAwayGoals)
	b.WriteString("**Top attack:** ")
	b.WriteString(rankList(info.TopAttack))
	b.WriteString("\n**Top defence:** ")
	b.WriteString(rankList(info.TopDefense))
	return b.String()
}

func rankList(ranks []model.TeamRank) string {
	names := make([]string, len(ranks))
	for i, r := range ranks {
		names[i] = fmt.Sprintf("%s (%+.2f)", r.Team, r.Value)
	}
	if len(names) == 0 {
		return "-"
	}
	return strings.Join(names, ", ")
}

// PostPrediction sends a rich embed to the announce channel.
func (b *Bot) PostPrediction(ctx context.Context, p publish.Payload) error {
	if b.channelID == "" {
		return nil
	}
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	embed := &discordgo.MessageEmbed{
		Title:       PredictionTitle(p.Prediction),
		Description: PredictionDescription(p.Prediction),
		Color:       embedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: fmt.Sprintf("Model v%d", p.Prediction.SnapshotVersion)},
	}
	if p.KickoffUTC != "" {
		embed.Timestamp = p.KickoffUTC
	}
	_, err := s.ChannelMessageSendEmbed(b.channelID, embed)
	if err != nil {
		return fmt.Errorf("send embed: %w", err)
	}
	slog.Info("discord prediction sent", "channel", b.channelID, "fixture_id", p.Prediction.FixtureID)
	return nil
}

// Session returns the discordgo session (for registering handlers and opening).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// RegisterSlashCommands registers /model, /prediction and /ping. Call after Open() so State is ready.
func (b *Bot) RegisterSlashCommands(guildID string) ([]*discordgo.ApplicationCommand, error) {
	appID := b.session.State.User.ID
	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "model",
			Description: "Show the current model version and strongest teams",
		},
		{
			Name:        "prediction",
			Description: "Show the latest prediction for a fixture",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "fixture",
					Description: "Fixture id",
					Required:    true,
				},
			},
		},
		{
			Name:        "ping",
			Description: "Ping the bot to check if it's online",
		},
	}
	var registered []*discordgo.ApplicationCommand
	for _, cmd := range commands {
		created, err := b.session.ApplicationCommandCreate(appID, guildID, cmd)
		if err != nil {
			return registered, fmt.Errorf("create command %s: %w", cmd.Name, err)
		}
		registered = append(registered, created)
	}
	return registered, nil
}

// AddInteractionHandler registers the handler for slash commands.
func (b *Bot) AddInteractionHandler(handler func(s *discordgo.Session, i *discordgo.InteractionCreate)) {
	b.session.AddHandler(handler)
}

// SetWatchingStatus shows the model version as the bot's activity.
func (b *Bot) SetWatchingStatus(version uint64) error {
	b.mu.Lock()
	s := b.session
	b.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status: "online",
		Activities: []*discordgo.Activity{
			{
				Type: discordgo.ActivityTypeWatching,
				Name: StatusName(version),
			},
		},
	})
}

// StatusName returns the "Watching" activity name.
func StatusName(version uint64) string {
	if version == 0 {
		return "for the first model"
	}
	return fmt.Sprintf("model v%d", version)
}
