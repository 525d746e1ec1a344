package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"footpredict/internal/consumer"
	"footpredict/internal/discord"
	"footpredict/internal/publish"

	"github.com/bwmarrin/discordgo"
	"github.com/redis/go-redis/v9"
)

const statusInterval = 5 * time.Minute

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	redisAddr := getEnv("REDIS_ADDR", "redis:6379")
	discordToken := os.Getenv("DISCORD_BOT_TOKEN")
	discordChannelID := os.Getenv("DISCORD_ANNOUNCE_CHANNEL_ID")
	discordGuildID := os.Getenv("DISCORD_GUILD_ID") // optional; empty = global commands

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Error("redis ping failed", "error", err)
		os.Exit(1)
	}

	c := consumer.NewConsumer(rdb)
	if err := c.EnsureGroup(ctx); err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		slog.Warn("consumer group ensure", "group", consumer.ConsumerGroup, "error", err)
	}
	slog.Info("announcer started", "stream", publish.StreamKey, "group", consumer.ConsumerGroup)

	var bot *discord.Bot
	if discordToken != "" {
		var err error
		bot, err = discord.NewBot(discord.Config{
			Token:             discordToken,
			AnnounceChannelID: discordChannelID,
		})
		if err != nil {
			slog.Error("discord bot create failed", "error", err)
			os.Exit(1)
		}
		bot.AddInteractionHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
			if i.Type != discordgo.InteractionApplicationCommand {
				return
			}
			data := i.ApplicationCommandData()
			switch data.Name {
			case "ping":
				respond(s, i, "**Pong!** Predictor bot is online.")
			case "model":
				deferRespond(s, i, func() string {
					info, err := c.ReadModelInfo(ctx)
					if err != nil {
						return "Could not read model info: " + err.Error()
					}
					return discord.ModelInfoDescription(info)
				})
			case "prediction":
				fixtureID := ""
				if len(data.Options) > 0 {
					fixtureID = data.Options[0].StringValue()
				}
				deferRespond(s, i, func() string {
					p, err := c.ReadLatest(ctx, fixtureID)
					if err != nil {
						return "Could not read prediction: " + err.Error()
					}
					if p == nil {
						return fmt.Sprintf("No prediction stored for fixture `%s`.", fixtureID)
					}
					return "**" + discord.PredictionTitle(p.Prediction) + "**\n" + discord.PredictionDescription(p.Prediction)
				})
			}
		})
		bot.Session().AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
			slog.Info("discord connected", "user", r.User.Username, "id", r.User.ID)
		})
		slog.Info("connecting to Discord gateway...")
		if err := bot.Session().Open(); err != nil {
			slog.Error("discord open failed", "error", err)
			os.Exit(1)
		}
		defer bot.Session().Close()
		registered, err := bot.RegisterSlashCommands(discordGuildID)
		if err != nil {
			slog.Warn("discord register commands failed", "error", err)
		} else {
			slog.Info("discord slash commands registered", "count", len(registered), "guild_id", discordGuildID)
		}
		go runStatusUpdates(ctx, bot, c)
	} else {
		slog.Info("DISCORD_BOT_TOKEN not set; Discord announcements and commands disabled")
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutting down announcer", "reason", ctx.Err())
			return
		default:
			payloads, ids, err := c.ReadPredictions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("read predictions failed", "error", err)
					time.Sleep(time.Second)
				}
				continue
			}
			for _, p := range payloads {
				slog.Info("prediction received",
					"fixture_id", p.Prediction.FixtureID,
					"home", p.Prediction.Home,
					"away", p.Prediction.Away,
					"outcome", p.Prediction.Outcome,
					"snapshot_version", p.Prediction.SnapshotVersion,
				)
				if bot != nil {
					if err := bot.PostPrediction(ctx, p); err != nil {
						slog.Warn("discord post failed", "error", err)
					}
				}
			}
			if len(ids) > 0 {
				if err := c.Ack(ctx, ids...); err != nil {
					slog.Warn("ack failed", "error", err)
				}
			}
		}
	}
}

func respond(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content:         content,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		},
	})
	if err != nil {
		slog.Warn("discord respond failed", "error", err)
	}
}

// deferRespond acknowledges the interaction, then sends the result as a followup.
func deferRespond(s *discordgo.Session, i *discordgo.InteractionCreate, fn func() string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{},
	})
	if err != nil {
		slog.Warn("discord defer respond failed", "error", err)
		return
	}
	_, err = s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:         fn(),
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	})
	if err != nil {
		slog.Warn("discord followup failed", "error", err)
	}
}

// runStatusUpdates keeps the bot activity showing the current model version.
func runStatusUpdates(ctx context.Context, bot *discord.Bot, c *consumer.Consumer) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()
	update := func() {
		var version uint64
		info, err := c.ReadModelInfo(ctx)
		if err != nil {
			slog.Warn("status update: model info read failed", "error", err)
			return
		}
		if info != nil {
			version = info.Version
		}
		if err := bot.SetWatchingStatus(version); err != nil {
			slog.Warn("status update failed", "error", err)
		}
	}
	update()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
