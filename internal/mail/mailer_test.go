package mail

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-msgauth/dkim"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type message struct {
	from string
	to   []string
	data []byte
	user string
}

// sink is an in-process SMTP backend that records delivered messages.
type sink struct {
	mu       sync.Mutex
	messages []message
	username string
	password string
}

func (b *sink) NewSession(*smtp.Conn) (smtp.Session, error) {
	return &sinkSession{backend: b}, nil
}

func (b *sink) delivered() []message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]message(nil), b.messages...)
}

type sinkSession struct {
	backend *sink
	msg     message
}

func (s *sinkSession) AuthMechanisms() []string { return []string{sasl.Plain} }

func (s *sinkSession) Auth(string) (sasl.Server, error) {
	return sasl.NewPlainServer(func(_, username, password string) error {
		if username != s.backend.username || password != s.backend.password {
			return errors.New("invalid credentials")
		}
		s.msg.user = username
		return nil
	}), nil
}

func (s *sinkSession) Mail(from string, _ *smtp.MailOptions) error {
	s.msg.from = from
	return nil
}

func (s *sinkSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.msg.to = append(s.msg.to, to)
	return nil
}

func (s *sinkSession) Data(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.msg.data = data
	s.backend.mu.Lock()
	s.backend.messages = append(s.backend.messages, s.msg)
	s.backend.mu.Unlock()
	return nil
}

func (s *sinkSession) Reset()        { s.msg = message{user: s.msg.user} }
func (s *sinkSession) Logout() error { return nil }

// selfSigned returns a server certificate for 127.0.0.1 and a client
// config that trusts only it.
func selfSigned(t *testing.T) (*tls.Config, *tls.Config) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "blaze test sink"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	leaf, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(leaf)
	server := &tls.Config{Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key, Leaf: leaf}}}
	client := &tls.Config{RootCAs: roots}
	return server, client
}

// startSink serves b on a loopback port. With implicit set the listener
// speaks TLS from the first byte; otherwise the sink offers STARTTLS when
// serverTLS is non-nil.
func startSink(t *testing.T, b *sink, serverTLS *tls.Config, implicit bool) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	if implicit {
		ln = tls.NewListener(ln, serverTLS)
	}

	srv := smtp.NewServer(b)
	srv.Domain = "localhost"
	srv.ReadTimeout = 5 * time.Second
	srv.WriteTimeout = 5 * time.Second
	if !implicit {
		srv.TLSConfig = serverTLS
		srv.AllowInsecureAuth = serverTLS == nil
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })
	return ln.Addr().String()
}

func assertDelivered(t *testing.T, backend *sink) {
	t.Helper()
	msgs := backend.delivered()
	require.Len(t, msgs, 1)
	assert.Equal(t, "blaze", msgs[0].user)
	assert.Equal(t, "no-reply@blaze.test", msgs[0].from)
	assert.Equal(t, []string{"amaka@example.com"}, msgs[0].to)

	body := string(msgs[0].data)
	assert.Contains(t, body, "To: amaka@example.com")
	assert.Contains(t, body, "Hello Amaka,")
	assert.Contains(t, body, "k9x2p0")
	assert.Contains(t, body, "30m0s")
}

func TestSendCode_Disabled(t *testing.T) {
	m := New(Config{})
	assert.False(t, m.Enabled())
	assert.ErrorIs(t, m.SendCode("a@example.com", "A", "abc123", time.Minute), ErrDisabled)

	var nilMailer *Mailer
	assert.False(t, nilMailer.Enabled())
}

func TestSendCode_DeliversOverSTARTTLS(t *testing.T) {
	serverTLS, clientTLS := selfSigned(t)
	backend := &sink{username: "blaze", password: "s3cret"}
	addr := startSink(t, backend, serverTLS, false)

	m := New(Config{Addr: addr, Username: "blaze", Password: "s3cret", From: "no-reply@blaze.test", TLSConfig: clientTLS})
	require.NoError(t, m.SendCode("amaka@example.com", "Amaka", "k9x2p0", 30*time.Minute))
	assertDelivered(t, backend)
}

func TestSendCode_DeliversOverImplicitTLS(t *testing.T) {
	serverTLS, clientTLS := selfSigned(t)
	backend := &sink{username: "blaze", password: "s3cret"}
	addr := startSink(t, backend, serverTLS, true)

	m := New(Config{
		Addr: addr, Username: "blaze", Password: "s3cret", From: "no-reply@blaze.test",
		Security: ImplicitTLS, TLSConfig: clientTLS,
	})
	require.NoError(t, m.SendCode("amaka@example.com", "Amaka", "k9x2p0", 30*time.Minute))
	assertDelivered(t, backend)
}

func TestSendCode_DeliversToPlaintextRelay(t *testing.T) {
	backend := &sink{username: "blaze", password: "s3cret"}
	addr := startSink(t, backend, nil, false)

	m := New(Config{Addr: addr, Username: "blaze", Password: "s3cret", From: "no-reply@blaze.test", Security: Plaintext})
	require.NoError(t, m.SendCode("amaka@example.com", "Amaka", "k9x2p0", 30*time.Minute))
	assertDelivered(t, backend)
}

func TestSendCode_StartTLSRequired(t *testing.T) {
	backend := &sink{username: "blaze", password: "s3cret"}
	addr := startSink(t, backend, nil, false)

	m := New(Config{Addr: addr, Username: "blaze", Password: "s3cret", From: "no-reply@blaze.test"})
	err := m.SendCode("amaka@example.com", "Amaka", "k9x2p0", time.Minute)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STARTTLS")
	assert.Empty(t, backend.delivered())
}

func TestSendCode_UntrustedCertificate(t *testing.T) {
	serverTLS, _ := selfSigned(t)
	backend := &sink{username: "blaze", password: "s3cret"}
	addr := startSink(t, backend, serverTLS, false)

	m := New(Config{Addr: addr, Username: "blaze", Password: "s3cret", From: "no-reply@blaze.test", TLSConfig: &tls.Config{RootCAs: x509.NewCertPool()}})
	assert.Error(t, m.SendCode("amaka@example.com", "Amaka", "k9x2p0", time.Minute))
	assert.Empty(t, backend.delivered())
}

func TestSendCode_BadCredentials(t *testing.T) {
	serverTLS, clientTLS := selfSigned(t)
	addr := startSink(t, &sink{username: "blaze", password: "s3cret"}, serverTLS, false)

	m := New(Config{Addr: addr, Username: "blaze", Password: "wrong", From: "no-reply@blaze.test", TLSConfig: clientTLS})
	assert.Error(t, m.SendCode("amaka@example.com", "Amaka", "k9x2p0", time.Minute))
}

func TestParseSecurity(t *testing.T) {
	tests := []struct {
		in   string
		want Security
	}{
		{"", StartTLS},
		{"starttls", StartTLS},
		{" TLS ", ImplicitTLS},
		{"none", Plaintext},
	}
	for _, tt := range tests {
		got, err := ParseSecurity(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseSecurity("ssl3")
	assert.Error(t, err)
}

func TestSendCode_DKIMSigned(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var captured []byte
	m := New(Config{
		Addr:         "unused:25",
		From:         "no-reply@blaze.test",
		DKIMDomain:   "blaze.test",
		DKIMSelector: "mail",
		DKIMSigner:   priv,
	})
	m.send = func(_ string, _ sasl.Client, _ string, _ []string, msg *bytes.Reader) error {
		captured, err = io.ReadAll(msg)
		return err
	}
	require.NoError(t, m.SendCode("amaka@example.com", "", "k9x2p0", time.Minute))
	require.True(t, strings.HasPrefix(string(captured), "DKIM-Signature:"))

	record := "v=DKIM1; k=ed25519; p=" + base64.StdEncoding.EncodeToString(pub)
	verifications, err := dkim.VerifyWithOptions(bytes.NewReader(captured), &dkim.VerifyOptions{
		LookupTXT: func(domain string) ([]string, error) {
			if domain != "mail._domainkey.blaze.test" {
				return nil, errors.New("no such record")
			}
			return []string{record}, nil
		},
	})
	require.NoError(t, err)
	require.Len(t, verifications, 1)
	assert.NoError(t, verifications[0].Err)
	assert.Equal(t, "blaze.test", verifications[0].Domain)
}

func TestLoadSigner(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "dkim.pem")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), 0600))

	signer, err := LoadSigner(path)
	require.NoError(t, err)
	assert.Equal(t, priv.Public(), signer.Public())

	bad := filepath.Join(dir, "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0600))
	_, err = LoadSigner(bad)
	assert.Error(t, err)
}
