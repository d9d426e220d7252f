package peers

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"text/template"

	"wgfleet/internal/models"
	"wgfleet/internal/tarball"
)

var clientConfig = template.Must(template.New("client").Parse(`[Interface]
PrivateKey = {{.PrivateKey}}
Address = {{.Address}}

[Peer]
PublicKey = {{.ServerPublicKey}}
Endpoint = {{.Endpoint}}
AllowedIPs = {{.AllowedIPs}}
PersistentKeepalive = {{.Keepalive}}
`))

type clientProfile struct {
	PrivateKey      string
	Address         string
	ServerPublicKey string
	Endpoint        string
	AllowedIPs      string
	Keepalive       int
}

// RenderConfig рендерит клиентский профиль пира. Длина префикса берётся из подсети сервера.
func (s *Service) RenderConfig(ctx context.Context, id string) ([]byte, error) {
	p, err := s.d.Registry.Peers.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.render(p, p.Server)
}

func (s *Service) render(p *models.Peer, srv *models.ServerIdentity) ([]byte, error) {
	prefix, err := srv.Prefix()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrServerNotConfigured, err)
	}
	var buf bytes.Buffer
	err = clientConfig.Execute(&buf, clientProfile{
		PrivateKey:      p.PrivateKey,
		Address:         fmt.Sprintf("%s/%d", p.AssignedIP, prefix.Bits()),
		ServerPublicKey: srv.PublicKey,
		Endpoint:        s.opts.Endpoint,
		AllowedIPs:      s.opts.AllowedIPs,
		Keepalive:       s.opts.Keepalive,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// BundleName возвращает имя файла профиля в архиве.
func BundleName(p models.Peer) string {
	name := unsafeName.ReplaceAllString(p.Name, "_")
	if name == "" || name == "." || name == ".." {
		name = "peer"
	}
	id := p.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return name + "-" + id + ".conf"
}

// RenderBundle собирает tar.gz со всеми профилями владельца.
func (s *Service) RenderBundle(ctx context.Context, owner string) ([]byte, error) {
	peers, err := s.d.Registry.Peers.List(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(peers) == 0 {
		return nil, fmt.Errorf("%w: no peers for user %s", models.ErrNotFound, owner)
	}
	srv, err := s.d.Server.Resolve(ctx)
	if err != nil {
		return nil, err
	}
	files := make([]tarball.File, 0, len(peers))
	for i := range peers {
		conf, err := s.render(&peers[i], srv)
		if err != nil {
			return nil, err
		}
		files = append(files, tarball.File{Name: BundleName(peers[i]), Data: conf})
	}
	arc, _, err := tarball.Build(files)
	return arc, err
}
