package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sjqzhang/seelog"
)

// Identity scopes one cache subtree: no two distinct identities may read or
// write each other's files.
type Identity struct {
	Actor        string
	Form         string
	FormArgs     string
	FormInstance string
	Field        string
}

// FormInstanceID disambiguates two renderings of the same form with
// different call arguments on one page. Same form + same args always give
// the same id, so in-progress uploads survive a page reload.
func (c *Server) FormInstanceID(formArgs string) string {
	return c.util.MD5(Config().Secret + formArgs)[0:6]
}

func (c *Server) signToken(form, formArgs, field string, issuedAt int64) string {
	mac := hmac.New(sha256.New, []byte(Config().Secret))
	fmt.Fprintf(mac, "%s/%s/%s/%s/%d", CONST_TOKEN_NAMESPACE, form, formArgs, field, issuedAt)
	return hex.EncodeToString(mac.Sum(nil))
}

// IssueToken builds a `field:time:key` capability authorizing chunk uploads
// and deletions on one field of one form instance. No disk or network I/O.
func (c *Server) IssueToken(form, formArgs, field string) string {
	issuedAt := time.Now().Unix()
	return fmt.Sprintf("%s:%d:%s", field, issuedAt, c.signToken(form, formArgs, field, issuedAt))
}

// VerifyToken checks a `field:time:key` token against the claimed form and
// form arguments, and returns the field bound into the signature. Every
// entry point must pass here before touching the filesystem.
func (c *Server) VerifyToken(token, form, formArgs string) (string, error) {
	if token == "" {
		return "", ErrTokenMissing
	}
	parts := strings.SplitN(token, ":", 3)
	if len(parts) != 3 {
		return "", ErrTokenMalformed
	}
	field := parts[0]
	issuedAt, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrTokenMalformed
	}
	if time.Now().Unix()-issuedAt > Config().TokenExpire {
		return "", ErrTokenExpired
	}
	if form == "" || formArgs == "" {
		return "", ErrTokenInvalid
	}
	expected := c.signToken(form, formArgs, field, issuedAt)
	if !hmac.Equal([]byte(expected), []byte(parts[2])) {
		return "", ErrTokenInvalid
	}
	return field, nil
}

// actorFromRequest identifies the uploading party. An authenticated id can
// be handed over by a fronting proxy in the configured header; anonymous
// visitors get a per-browser session cookie instead.
func (c *Server) actorFromRequest(w http.ResponseWriter, r *http.Request) string {
	if h := Config().ActorHeader; h != "" {
		if actor := r.Header.Get(h); actor != "" {
			return SanitizePathSegment(strings.ToLower(actor))
		}
	}
	if cookie, err := r.Cookie(Config().SessionCookie); err == nil && cookie.Value != "" {
		return "0_" + SanitizePathSegment(cookie.Value)
	}
	session := strings.Replace(c.util.GetUUID(), "-", "", -1)
	if w != nil {
		http.SetCookie(w, &http.Cookie{
			Name:     Config().SessionCookie,
			Value:    session,
			Path:     "/",
			HttpOnly: true,
		})
	}
	return "0_" + session
}

// identityFromRequest verifies the request token and derives the full
// identity tuple. 403 material on any error.
func (c *Server) identityFromRequest(w http.ResponseWriter, r *http.Request) (Identity, error) {
	var (
		id Identity
	)
	r.ParseMultipartForm(1024 * 1024)
	token := r.FormValue("bigup_token")
	id.Form = r.FormValue("formulaire_action")
	id.FormArgs = r.FormValue("formulaire_action_args")
	field, err := c.VerifyToken(token, id.Form, id.FormArgs)
	if err != nil {
		log.Warn(fmt.Sprintf("token refused (%v) form:%s ip:%s", err, id.Form, c.util.GetClientIp(r)))
		return id, err
	}
	id.Field = field
	id.FormInstance = c.FormInstanceID(id.FormArgs)
	id.Actor = c.actorFromRequest(w, r)
	return id, nil
}
