// Package mail delivers one-time codes over SMTP, optionally DKIM-signed.
package mail

import (
	"bytes"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/Goofygiraffe06/blaze/internal/logging"
	"github.com/Goofygiraffe06/blaze/internal/utils"
	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
)

// ErrDisabled is returned by Send when no SMTP server is configured.
var ErrDisabled = errors.New("mail delivery disabled")

// Security is how the connection to the SMTP server is protected.
type Security string

const (
	// StartTLS upgrades a plaintext connection and refuses servers without STARTTLS.
	StartTLS Security = "starttls"
	// ImplicitTLS dials straight into TLS, as on port 465.
	ImplicitTLS Security = "tls"
	// Plaintext never negotiates TLS. Only for local relays.
	Plaintext Security = "none"
)

// ParseSecurity maps a config value onto a Security. Empty means StartTLS.
func ParseSecurity(s string) (Security, error) {
	switch sec := Security(strings.ToLower(strings.TrimSpace(s))); sec {
	case "":
		return StartTLS, nil
	case StartTLS, ImplicitTLS, Plaintext:
		return sec, nil
	default:
		return "", fmt.Errorf("unknown smtp security %q", s)
	}
}

// Config configures a Mailer. An empty Addr disables delivery.
type Config struct {
	Addr     string
	Username string
	Password string
	From     string

	Security Security
	// TLSConfig is used for StartTLS and ImplicitTLS. Nil means system roots
	// with the server name taken from Addr.
	TLSConfig *tls.Config

	DKIMDomain   string
	DKIMSelector string
	DKIMSigner   crypto.Signer
}

// Mailer sends one-time codes.
type Mailer struct {
	cfg  Config
	now  func() time.Time
	send func(addr string, a sasl.Client, from string, to []string, msg *bytes.Reader) error
}

// New creates a Mailer.
func New(cfg Config) *Mailer {
	m := &Mailer{cfg: cfg, now: time.Now}
	m.send = m.deliver
	return m
}

// Enabled reports whether Send will attempt delivery.
func (m *Mailer) Enabled() bool {
	return m != nil && m.cfg.Addr != ""
}

// SendCode mails code to the registrant.
func (m *Mailer) SendCode(to, fullName, code string, ttl time.Duration) error {
	if !m.Enabled() {
		return ErrDisabled
	}

	greeting := "Hello"
	if fullName != "" {
		greeting = "Hello " + fullName
	}
	body := fmt.Sprintf("%s,\r\n\r\nYour verification code is: %s\r\n\r\nIt expires in %s.\r\n",
		greeting, code, ttl.Round(time.Minute))

	msg, err := m.compose(to, "Your verification code", body)
	if err != nil {
		return err
	}

	var auth sasl.Client
	if m.cfg.Username != "" {
		auth = sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)
	}

	start := time.Now()
	if err := m.send(m.cfg.Addr, auth, m.cfg.From, []string{to}, bytes.NewReader(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	logging.InfoLog("Code delivered [%s] %v", utils.HashEmail(to), time.Since(start))
	return nil
}

func (m *Mailer) deliver(addr string, a sasl.Client, from string, to []string, msg *bytes.Reader) error {
	c, err := m.dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("smtp: server doesn't support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.SendMail(from, to, msg); err != nil {
		return err
	}
	return c.Quit()
}

func (m *Mailer) dial(addr string) (*smtp.Client, error) {
	switch m.cfg.Security {
	case ImplicitTLS:
		return smtp.DialTLS(addr, m.cfg.TLSConfig)
	case Plaintext:
		return smtp.Dial(addr)
	default:
		return smtp.DialStartTLS(addr, m.cfg.TLSConfig)
	}
}

func (m *Mailer) compose(to, subject, body string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", to)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	fmt.Fprintf(&buf, "Message-ID: <%s@%s>\r\n", uuid.NewString(), domainOf(m.cfg.From))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(body)

	if m.cfg.DKIMSigner == nil || m.cfg.DKIMDomain == "" || m.cfg.DKIMSelector == "" {
		return buf.Bytes(), nil
	}

	var signed bytes.Buffer
	err := dkim.Sign(&signed, &buf, &dkim.SignOptions{
		Domain:     m.cfg.DKIMDomain,
		Selector:   m.cfg.DKIMSelector,
		Signer:     m.cfg.DKIMSigner,
		HeaderKeys: []string{"From", "To", "Subject", "Date", "Message-ID"},
	})
	if err != nil {
		return nil, fmt.Errorf("dkim sign: %w", err)
	}
	return signed.Bytes(), nil
}

// LoadSigner reads a PKCS#8 PEM private key (RSA or Ed25519) for DKIM.
func LoadSigner(path string) (crypto.Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, errors.New("dkim key: no PEM block")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		if rsaKey, rerr := x509.ParsePKCS1PrivateKey(block.Bytes); rerr == nil {
			return rsaKey, nil
		}
		return nil, fmt.Errorf("dkim key: %w", err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, errors.New("dkim key: unsupported key type")
	}
	return signer, nil
}

func domainOf(addr string) string {
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.Trim(addr[i+1:], "> ")
	}
	return "localhost"
}
