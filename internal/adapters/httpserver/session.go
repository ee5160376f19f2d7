package httpserver

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/facuvega/vitrina/internal/domain"
)

func secretKey() []byte {
	k := os.Getenv("SESSION_KEY")
	if k == "" {
		k = "dev-insecure"
	}
	return []byte(k)
}

func sign(payload []byte) string {
	h := hmac.New(sha256.New, secretKey())
	h.Write(payload)
	sig := base64.RawURLEncoding.EncodeToString(h.Sum(nil))
	return sig + "." + base64.RawURLEncoding.EncodeToString(payload)
}

func verify(val string) []byte {
	parts := strings.SplitN(val, ".", 2)
	if len(parts) != 2 {
		return nil
	}
	sig, _ := base64.RawURLEncoding.DecodeString(parts[0])
	payload, _ := base64.RawURLEncoding.DecodeString(parts[1])
	h := hmac.New(sha256.New, secretKey())
	h.Write(payload)
	if !hmac.Equal(sig, h.Sum(nil)) {
		return nil
	}
	return payload
}

type sessionUser struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
}

func writeUserSession(w http.ResponseWriter, u *sessionUser) {
	if u == nil {
		http.SetCookie(w, &http.Cookie{Name: "sess", Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode})
		return
	}
	b, _ := json.Marshal(u)
	http.SetCookie(w, &http.Cookie{Name: "sess", Value: sign(b), Path: "/", MaxAge: 60 * 60 * 24 * 7, HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode})
}

func readUserSession(r *http.Request) *sessionUser {
	if r == nil {
		return nil
	}
	c, err := r.Cookie("sess")
	if err != nil || c.Value == "" {
		return nil
	}
	payload := verify(c.Value)
	if payload == nil {
		return nil
	}
	var u sessionUser
	if err := json.Unmarshal(payload, &u); err != nil {
		return nil
	}
	if u.Email == "" || u.CustomerID == uuid.Nil {
		return nil
	}
	return &u
}

func readSessionToken(r *http.Request) string {
	c, err := r.Cookie("sid")
	if err != nil || c.Value == "" {
		return ""
	}
	payload := verify(c.Value)
	if payload == nil {
		return ""
	}
	return string(payload)
}

// ensureSessionToken devuelve el token de sesión anónima, acuñando uno
// nuevo en el primer request que afecta al carrito.
func ensureSessionToken(w http.ResponseWriter, r *http.Request) string {
	if tok := readSessionToken(r); tok != "" {
		return tok
	}
	tok := uuid.New().String()
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: sign([]byte(tok)), Path: "/", MaxAge: 60 * 60 * 24 * 30, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode})
	return tok
}

// clearSessionToken expira la cookie del token anónimo. El marcador de
// merge se persiste por token para siempre, así que un token que ya
// plegó su carrito no puede sobrevivir a la sesión: la próxima sesión
// anónima debe acuñar uno nuevo.
func clearSessionToken(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{Name: "sid", Value: "", Path: "/", MaxAge: -1, HttpOnly: true, Secure: true, SameSite: http.SameSiteLaxMode})
}

// identity arma la identidad del request: cliente autenticado si hay
// sesión firmada, si no el token anónimo. Nunca ambos a la vez.
func identity(w http.ResponseWriter, r *http.Request) domain.Identity {
	if u := readUserSession(r); u != nil {
		cid := u.CustomerID
		return domain.Identity{CustomerID: &cid}
	}
	return domain.Identity{SessionToken: ensureSessionToken(w, r)}
}
