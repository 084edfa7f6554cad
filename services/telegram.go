package services

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"firewatch/config"
	"firewatch/models"
)

// TelegramService pushes alert cards to a Telegram chat, rate-limited per
// device so a flapping sensor does not flood the channel.
type TelegramService struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	cooldown       time.Duration
	logger         *zap.Logger
	mu             sync.Mutex
	lastAlertTimes map[string]time.Time
}

func NewTelegramService(cfg *config.Config, logger *zap.Logger) (*TelegramService, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("error creating telegram bot: %v", err)
	}

	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("error parsing chat ID: %v", err)
	}

	logger.Info("Telegram bot authorized", zap.String("username", bot.Self.UserName))

	return &TelegramService{
		bot:            bot,
		chatID:         chatID,
		cooldown:       cfg.AlertCooldown,
		logger:         logger,
		lastAlertTimes: make(map[string]time.Time),
	}, nil
}

// SendAlert sends one formatted alert message for a history entry.
func (ts *TelegramService) SendAlert(deviceName string, entry models.AlertHistoryEntry) error {
	ts.mu.Lock()
	last, seen := ts.lastAlertTimes[entry.DeviceID]
	now := time.Now()
	if seen && now.Sub(last) < ts.cooldown {
		ts.mu.Unlock()
		ts.logger.Debug("Telegram alert suppressed by cooldown",
			zap.String("device_id", entry.DeviceID),
			zap.Duration("since_last", now.Sub(last)))
		return nil
	}
	ts.lastAlertTimes[entry.DeviceID] = now
	ts.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("🚨 <b>DEVICE ALERT</b> 🚨\n\n")
	sb.WriteString(fmt.Sprintf("📱 <b>Device:</b> %s\n", deviceName))
	sb.WriteString(fmt.Sprintf("🕐 <b>Time:</b> %s\n", time.UnixMilli(entry.Timestamp).Format("2006-01-02 15:04:05")))
	sb.WriteString(fmt.Sprintf("💬 <b>Message:</b> %s\n\n", entry.Message))
	sb.WriteString(fmt.Sprintf("🧪 <b>Gas:</b> %s\n", entry.GasStatus))
	sb.WriteString(fmt.Sprintf("💨 <b>Smoke level:</b> %.0f\n", entry.SmokeLevel))
	if entry.Temperature != nil {
		sb.WriteString(fmt.Sprintf("🌡️ <b>Temperature:</b> %.1f°C\n", *entry.Temperature))
	}
	if entry.Humidity != nil {
		sb.WriteString(fmt.Sprintf("💧 <b>Humidity:</b> %.1f%%\n", *entry.Humidity))
	}
	sb.WriteString("\n🔴 <b>Status:</b> ALERT")

	msg := tgbotapi.NewMessage(ts.chatID, sb.String())
	msg.ParseMode = "HTML"
	msg.DisableWebPagePreview = true

	if _, err := ts.bot.Send(msg); err != nil {
		return fmt.Errorf("error sending alert message: %v", err)
	}

	ts.logger.Info("Sent Telegram alert",
		zap.String("device_id", entry.DeviceID),
		zap.String("device_name", deviceName))
	return nil
}
