// Package notify manda avisos al comerciante por Telegram. Es fire and
// forget: una falla se loguea y jamás bloquea la mutación que lo originó.
package notify

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Telegram struct {
	token  string
	chats  []string
	client *http.Client
}

func NewTelegram() *Telegram {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	rawIDs := os.Getenv("TELEGRAM_CHAT_IDS")
	if strings.TrimSpace(rawIDs) == "" {
		rawIDs = os.Getenv("TELEGRAM_CHAT_ID")
	}
	chats := []string{}
	for _, part := range strings.Split(rawIDs, ",") {
		if id := strings.TrimSpace(part); id != "" {
			chats = append(chats, id)
		}
	}
	return &Telegram{
		token:  token,
		chats:  chats,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify despacha en una goroutine y vuelve al instante.
func (t *Telegram) Notify(msg string) {
	if t == nil || t.token == "" || len(t.chats) == 0 {
		return
	}
	go func() {
		if err := t.send(msg); err != nil {
			log.Warn().Err(err).Msg("notificación telegram falló")
		}
	}()
}

func (t *Telegram) send(msg string) error {
	apiURL := "https://api.telegram.org/bot" + t.token + "/sendMessage"
	var lastErr error
	for _, id := range t.chats {
		form := url.Values{}
		form.Set("chat_id", id)
		form.Set("text", msg)
		form.Set("disable_web_page_preview", "1")
		resp, err := t.client.PostForm(apiURL, form)
		if err != nil {
			lastErr = err
			continue
		}
		func() {
			defer resp.Body.Close()
			if resp.StatusCode >= 300 {
				body, _ := io.ReadAll(resp.Body)
				lastErr = fmt.Errorf("telegram status %d: %s", resp.StatusCode, string(body))
			}
		}()
	}
	return lastErr
}
