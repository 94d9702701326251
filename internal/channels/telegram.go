package channels

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dhvos/dhvos-go/internal/bus"
)

const telegramAPIBase = "https://api.telegram.org"

// memberCacheTTL bounds how long a membership verdict is reused before the
// group is asked again.
const memberCacheTTL = 5 * time.Minute

// Membership denial replies, mirroring the community's subscription flow.
const (
	replyMembershipEnded = "❌ Your DHV subscription has ended or you are no longer a member of the community.\n\n" +
		"Please check your email for the subscription link to continue enjoying our features."
	replyMembershipRestricted = "⚠️ Your DHV subscription is currently restricted.\n\n" +
		"Please check your email for the subscription link to regain access and continue enjoying the community's features."
	replyNotMember    = "❌ You are not a member of the DHV community."
	replyVerifyFailed = "❌ Could not verify your membership. Please try again later."
)

const welcomeText = "👋 Welcome to DHV OS!\n\n" +
	"I'm your AI assistant designed to make your digital hustle smarter and faster. 🚀\n\n" +
	"Here's what you can do with me:\n" +
	"• Ask me anything in DM and get instant guidance from our knowledge base 📚\n" +
	"• Tag me in the DHV group to answer questions and provide insights 💡\n" +
	"• Stay updated with tips, strategies, and daily growth hacks for your online business 📈\n\n" +
	"🚀 Pro Tip: The more you interact with me, the smarter we get. Let's make your digital hustle unstoppable! 💪"

// memberVerdict is a cached membership check result.
type memberVerdict struct {
	allowed bool
	denial  string
	checked time.Time
}

// TelegramChannel implements the Telegram bot channel using long polling.
// In group chats the bot only answers when mentioned or when the message
// replies to one of its own; private chats always get an answer.
type TelegramChannel struct {
	BaseChannel
	Token   string
	GroupID string // restrict group responses to this chat id ("" = any group)

	apiBase  string
	botUser  string
	client   *http.Client
	cancelFn context.CancelFunc

	memberMu sync.Mutex
	members  map[string]memberVerdict
}

// NewTelegramChannel creates a TelegramChannel.
func NewTelegramChannel(token, groupID string, allowFrom []string, msgBus *bus.MessageBus) *TelegramChannel {
	return &TelegramChannel{
		BaseChannel: BaseChannel{
			ChannelName: "telegram",
			Bus:         msgBus,
			AllowFrom:   allowFrom,
		},
		Token:   token,
		GroupID: groupID,
		apiBase: telegramAPIBase,
		client:  &http.Client{Timeout: 60 * time.Second},
		members: make(map[string]memberVerdict),
	}
}

func (t *TelegramChannel) Name() string    { return "telegram" }
func (t *TelegramChannel) IsRunning() bool { return t.Running }

// Start begins long polling for Telegram updates.
func (t *TelegramChannel) Start(ctx context.Context) error {
	if t.Token == "" {
		return fmt.Errorf("telegram bot token not configured")
	}
	t.Running = true
	ctx, t.cancelFn = context.WithCancel(ctx)

	info, err := t.apiCall("getMe", nil)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	if result, ok := info["result"].(map[string]any); ok {
		if username, ok := result["username"].(string); ok {
			t.botUser = username
			log.Printf("[Telegram] Bot @%s connected", username)
		}
	}

	offset := 0
	for {
		select {
		case <-ctx.Done():
			t.Running = false
			return nil
		default:
		}

		updates, err := t.apiCall("getUpdates", map[string]any{
			"offset":          offset,
			"timeout":         30,
			"allowed_updates": []string{"message"},
		})
		if err != nil {
			log.Printf("[Telegram] getUpdates error: %v", err)
			time.Sleep(5 * time.Second)
			continue
		}

		results, _ := updates["result"].([]any)
		for _, u := range results {
			update, ok := u.(map[string]any)
			if !ok {
				continue
			}
			if uid, ok := update["update_id"].(float64); ok {
				offset = int(uid) + 1
			}
			t.processUpdate(update)
		}
	}
}

// Stop stops the Telegram bot.
func (t *TelegramChannel) Stop() error {
	t.Running = false
	if t.cancelFn != nil {
		t.cancelFn()
	}
	return nil
}

// Send sends a message via Telegram, replying to the originating message.
func (t *TelegramChannel) Send(msg bus.OutboundMessage) error {
	t.apiCall("sendChatAction", map[string]any{
		"chat_id": msg.ChatID,
		"action":  "typing",
	})

	params := map[string]any{
		"chat_id":    msg.ChatID,
		"text":       MarkdownToTelegramHTML(msg.Content),
		"parse_mode": "HTML",
	}
	if msg.ReplyTo != 0 {
		params["reply_to_message_id"] = msg.ReplyTo
	}
	_, err := t.apiCall("sendMessage", params)
	if err != nil {
		// Fall back to plain text when the HTML rendering is rejected.
		_, err = t.apiCall("sendMessage", map[string]any{
			"chat_id": msg.ChatID,
			"text":    msg.Content,
		})
	}
	return err
}

func (t *TelegramChannel) processUpdate(update map[string]any) {
	msg, ok := update["message"].(map[string]any)
	if !ok {
		return
	}
	from, _ := msg["from"].(map[string]any)
	chat, _ := msg["chat"].(map[string]any)
	if from == nil || chat == nil {
		return
	}

	userID := fmt.Sprintf("%.0f", from["id"])
	senderID := userID
	if username, ok := from["username"].(string); ok && username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, username)
	}
	chatID := fmt.Sprintf("%.0f", chat["id"])
	chatType, _ := chat["type"].(string)

	text, _ := msg["text"].(string)
	if text == "" {
		if caption, ok := msg["caption"].(string); ok {
			text = caption
		}
	}
	if strings.TrimSpace(text) == "" {
		return
	}

	if chatType == "group" || chatType == "supergroup" {
		if t.GroupID != "" && chatID != t.GroupID {
			return
		}
		addressed, cleaned := t.addressedToBot(msg, text)
		if !addressed {
			return
		}
		text = cleaned
	}

	messageID := int64(0)
	if mid, ok := msg["message_id"].(float64); ok {
		messageID = int64(mid)
	}
	if messageID == 0 {
		return
	}

	if strings.HasPrefix(strings.TrimSpace(text), "/start") {
		if allowed, denial := t.verifyMembership(userID); !allowed {
			t.sendPlain(chatID, denial, messageID)
			return
		}
		t.sendPlain(chatID, welcomeText, messageID)
		log.Printf("[Telegram] User %s started the bot", userID)
		return
	}

	if allowed, denial := t.verifyMembership(userID); !allowed {
		t.sendPlain(chatID, denial, messageID)
		return
	}

	t.HandleMessage(senderID, chatID, messageID, text)
}

// verifyMembership checks that the sender belongs to the community group.
// With no group configured everyone passes. Verdicts are cached briefly so a
// chatty user costs one getChatMember per TTL, not one per message.
func (t *TelegramChannel) verifyMembership(userID string) (allowed bool, denial string) {
	if t.GroupID == "" {
		return true, ""
	}

	t.memberMu.Lock()
	if v, ok := t.members[userID]; ok && time.Since(v.checked) < memberCacheTTL {
		t.memberMu.Unlock()
		return v.allowed, v.denial
	}
	t.memberMu.Unlock()

	resp, err := t.apiCall("getChatMember", map[string]any{
		"chat_id": t.GroupID,
		"user_id": json.Number(userID),
	})
	if err != nil {
		// Verification failures deny but are not cached: the next message
		// retries instead of locking the user out for the TTL.
		log.Printf("[Telegram] Membership check for %s failed: %v", userID, err)
		return false, replyVerifyFailed
	}

	result, _ := resp["result"].(map[string]any)
	status, _ := result["status"].(string)

	allowed, denial = true, ""
	switch status {
	case "kicked":
		allowed, denial = false, replyMembershipEnded
	case "left":
		allowed, denial = false, replyNotMember
	case "restricted":
		if canSend, ok := result["can_send_messages"].(bool); ok && !canSend {
			allowed, denial = false, replyMembershipRestricted
		}
	}

	t.memberMu.Lock()
	t.members[userID] = memberVerdict{allowed: allowed, denial: denial, checked: time.Now()}
	t.memberMu.Unlock()
	return allowed, denial
}

// sendPlain sends an unformatted reply outside the engine pipeline, used for
// command responses and membership denials.
func (t *TelegramChannel) sendPlain(chatID, text string, replyTo int64) {
	params := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if replyTo != 0 {
		params["reply_to_message_id"] = replyTo
	}
	if _, err := t.apiCall("sendMessage", params); err != nil {
		log.Printf("[Telegram] Send failed: %v", err)
	}
}

// addressedToBot reports whether a group message is for the bot, either by
// @mention or by replying to one of the bot's messages. The returned text has
// the mention stripped.
func (t *TelegramChannel) addressedToBot(msg map[string]any, text string) (bool, string) {
	if t.botUser != "" {
		mention := "@" + t.botUser
		if strings.Contains(text, mention) {
			cleaned := strings.TrimSpace(strings.ReplaceAll(text, mention, ""))
			return cleaned != "", cleaned
		}
	}
	if reply, ok := msg["reply_to_message"].(map[string]any); ok {
		if replyFrom, ok := reply["from"].(map[string]any); ok {
			if username, ok := replyFrom["username"].(string); ok && username == t.botUser {
				return true, strings.TrimSpace(text)
			}
		}
	}
	return false, text
}

func (t *TelegramChannel) apiCall(method string, params map[string]any) (map[string]any, error) {
	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.Token, method)
	body, _ := json.Marshal(params)
	req, _ := http.NewRequest("POST", url, strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var result map[string]any
	json.NewDecoder(resp.Body).Decode(&result)
	if ok, _ := result["ok"].(bool); !ok {
		desc, _ := result["description"].(string)
		return result, fmt.Errorf("telegram %s: %s", method, desc)
	}
	return result, nil
}

var (
	codeBlockRe  = regexp.MustCompile("(?s)```[\\w]*\\n?([\\s\\S]*?)```")
	inlineCodeRe = regexp.MustCompile("`([^`]+)`")
	headingRe    = regexp.MustCompile(`(?m)^#{1,6}\s+(.+)$`)
	blockquoteRe = regexp.MustCompile(`(?m)^>\s*(.*)$`)
	linkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	boldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	boldRe2      = regexp.MustCompile(`__(.+?)__`)
	strikeRe     = regexp.MustCompile(`~~(.+?)~~`)
	bulletRe     = regexp.MustCompile(`(?m)^[-*]\s+`)
)

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	return strings.ReplaceAll(s, ">", "&gt;")
}

// MarkdownToTelegramHTML converts markdown to Telegram-safe HTML. Code spans
// are protected before escaping so their contents pass through verbatim.
func MarkdownToTelegramHTML(text string) string {
	if text == "" {
		return ""
	}

	var codeBlocks, inlineCodes []string
	text = codeBlockRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := codeBlockRe.FindStringSubmatch(m)
		codeBlocks = append(codeBlocks, sub[1])
		return fmt.Sprintf("\x00CB%d\x00", len(codeBlocks)-1)
	})
	text = inlineCodeRe.ReplaceAllStringFunc(text, func(m string) string {
		sub := inlineCodeRe.FindStringSubmatch(m)
		inlineCodes = append(inlineCodes, sub[1])
		return fmt.Sprintf("\x00IC%d\x00", len(inlineCodes)-1)
	})

	text = headingRe.ReplaceAllString(text, "$1")
	text = blockquoteRe.ReplaceAllString(text, "$1")
	text = escapeHTML(text)
	text = linkRe.ReplaceAllString(text, `<a href="$2">$1</a>`)
	text = boldRe.ReplaceAllString(text, "<b>$1</b>")
	text = boldRe2.ReplaceAllString(text, "<b>$1</b>")
	text = strikeRe.ReplaceAllString(text, "<s>$1</s>")
	text = bulletRe.ReplaceAllString(text, "• ")

	for i, code := range inlineCodes {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00IC%d\x00", i), "<code>"+escapeHTML(code)+"</code>")
	}
	for i, code := range codeBlocks {
		text = strings.ReplaceAll(text, fmt.Sprintf("\x00CB%d\x00", i), "<pre><code>"+escapeHTML(code)+"</code></pre>")
	}
	return text
}
