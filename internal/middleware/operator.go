package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
)

// Issuer is stamped on operator tokens minted by kioskctl.
const Issuer = "vtokiosk"

const RoleOperator = "operator"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenClaims is the payload of an operator token.
type TokenClaims struct {
	Sub    string `json:"sub"`
	Role   string `json:"role"`
	Exp    int64  `json:"exp"`
	Iat    int64  `json:"iat,omitempty"`
	Issuer string `json:"iss"`
}

type tokenHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
}

// hs256Header is the encoded header of every token this package signs.
var hs256Header = segment(mustJSON(tokenHeader{Alg: "HS256", Typ: "JWT"}))

type operatorKey struct{}

// SignOperatorToken mints an operator token valid for ttl. A zero ttl never
// expires.
func SignOperatorToken(secret, subject string, ttl time.Duration, now time.Time) (string, error) {
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("operator secret is empty")
	}
	claims := TokenClaims{Sub: subject, Role: RoleOperator, Iat: now.Unix(), Issuer: Issuer}
	if ttl > 0 {
		claims.Exp = now.Add(ttl).Unix()
	}
	return SignJWT(secret, claims)
}

// SignJWT signs claims with HS256.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", err
	}
	unsigned := hs256Header + "." + segment(payload)
	return unsigned + "." + signature(secret, unsigned), nil
}

// VerifyJWT checks the signature, algorithm, issuer and expiry of token.
func VerifyJWT(secret, token string, now time.Time) (*TokenClaims, error) {
	head, rest, ok := strings.Cut(token, ".")
	if !ok {
		return nil, ErrInvalidToken
	}
	body, sig, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(sig, ".") {
		return nil, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature(secret, head+"."+body)), []byte(sig)) {
		return nil, ErrInvalidToken
	}

	var header tokenHeader
	if err := decodeSegment(head, &header); err != nil || header.Alg != "HS256" {
		return nil, ErrInvalidToken
	}
	var claims TokenClaims
	if err := decodeSegment(body, &claims); err != nil || claims.Issuer != Issuer {
		return nil, ErrInvalidToken
	}
	if claims.Exp != 0 && now.Unix() > claims.Exp {
		return nil, ErrTokenExpired
	}
	return &claims, nil
}

func segment(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeSegment(s string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

func signature(secret, unsigned string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unsigned))
	return segment(mac.Sum(nil))
}

func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}

// bearer extracts the token from an Authorization header.
func bearer(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// Operator guards the operator endpoints. An empty secret leaves them open,
// which suits a single kiosk on a private network.
func Operator(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if strings.TrimSpace(secret) == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing authorization")
				return
			}
			token, ok := bearer(r)
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, token, time.Now())
			switch {
			case err != nil:
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", err.Error())
			case claims.Role != RoleOperator:
				writeJSONError(w, http.StatusForbidden, "forbidden", "operator role required")
			default:
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), operatorKey{}, claims.Sub)))
			}
		})
	}
}

// OperatorFromContext returns the subject of the verified operator token.
func OperatorFromContext(ctx context.Context) string {
	sub, _ := ctx.Value(operatorKey{}).(string)
	return sub
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	var body errorBody
	body.Error.Code = code
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
