package service

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/database64128/domaincheck-go/api"
	"github.com/database64128/domaincheck-go/checker"
	"github.com/database64128/domaincheck-go/dnsfilter"
	"github.com/database64128/domaincheck-go/domainset"
	"github.com/database64128/domaincheck-go/jsoncfg"
	"go.uber.org/zap"
)

const testConfig = `{
    "checker": {
        "domains": ["com"],
        "domainSets": [
            {"name": "forbidden", "type": "text", "path": "forbidden.txt"}
        ]
    },
    "api": {
        "enabled": true,
        "listen": "127.0.0.1:0"
    },
    "dns": {
        "enabled": true,
        "listen": "127.0.0.1:0",
        "upstreamTimeout": "2s"
    }
}`

func TestConfigJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(testConfig), 0644); err != nil {
		t.Fatal(err)
	}

	var sc Config
	if err := jsoncfg.Open(path, &sc); err != nil {
		t.Fatal(err)
	}
	if len(sc.Checker.DomainSets) != 1 || sc.Checker.DomainSets[0].Path != "forbidden.txt" {
		t.Errorf("sc.Checker.DomainSets = %+v", sc.Checker.DomainSets)
	}
	if !sc.API.Enabled || !sc.DNS.Enabled {
		t.Errorf("services not enabled: api %v, dns %v", sc.API.Enabled, sc.DNS.Enabled)
	}
	if sc.DNS.UpstreamTimeout.Value().Seconds() != 2 {
		t.Errorf("sc.DNS.UpstreamTimeout = %v, want 2s", sc.DNS.UpstreamTimeout.Value())
	}

	if err := jsoncfg.Save(path, sc); err != nil {
		t.Fatal(err)
	}
	var saved Config
	if err := jsoncfg.Open(path, &saved); err != nil {
		t.Fatalf("failed to open saved config: %v", err)
	}
}

func TestManager(t *testing.T) {
	dir := t.TempDir()
	domainSetPath := filepath.Join(dir, "forbidden.txt")
	if err := os.WriteFile(domainSetPath, []byte("gdz.ru\nmaps.me\nm.gdz.ru\n"), 0644); err != nil {
		t.Fatal(err)
	}

	sc := Config{
		Checker: checker.Config{
			Domains:    []string{"com"},
			DomainSets: []domainset.Config{{Name: "forbidden", Path: domainSetPath}},
		},
		API: api.Config{Enabled: true, Listen: "127.0.0.1:0"},
		DNS: dnsfilter.Config{Enabled: true, Listen: "127.0.0.1:0"},
	}

	m, err := sc.Manager(zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if got := m.Checker().Index().Len(); got != 3 {
		t.Errorf("index length = %d, want 3", got)
	}

	if err = m.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	apiServer := m.services[0].(*api.Server)
	resp, err := http.Get("http://" + apiServer.Addr().String() + "/api/v1/check?domain=maps.com")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var r struct {
		Forbidden bool `json:"forbidden"`
	}
	if err = json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatal(err)
	}
	if !r.Forbidden {
		t.Error("maps.com is not forbidden")
	}

	if m.services[1].(*dnsfilter.Server).Addr() == nil {
		t.Error("DNS filter is not listening")
	}
}

func TestManagerErrors(t *testing.T) {
	dir := t.TempDir()
	for _, c := range []struct {
		name string
		sc   Config
	}{
		{"NoServices", Config{}},
		{"BadChecker", Config{
			Checker: checker.Config{ForbiddenCountries: []string{"RU"}},
			API:     api.Config{Enabled: true, Listen: "127.0.0.1:0"},
		}},
		{"MissingDomainSet", Config{
			Checker: checker.Config{DomainSets: []domainset.Config{{Name: "missing", Path: filepath.Join(dir, "missing.txt")}}},
			DNS:     dnsfilter.Config{Enabled: true, Listen: "127.0.0.1:0"},
		}},
		{"BadAPI", Config{API: api.Config{Enabled: true}}},
		{"BadDNS", Config{DNS: dnsfilter.Config{Enabled: true}}},
	} {
		t.Run(c.name, func(t *testing.T) {
			if _, err := c.sc.Manager(zap.NewNop()); err == nil {
				t.Error("expected error")
			}
		})
	}
}
