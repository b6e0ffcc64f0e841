package main

import (
	"bytes"
	"encoding/json"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"netconform/internal/adapter"
	"netconform/internal/config"
	"netconform/internal/domain"
	"netconform/internal/service"
)

const testModel = `
system: IoT
hosts:
  - name: Device
    addresses: ["1:0:0:0:0:1|hw"]
  - name: Backend
    addresses: [192.168.0.2]
    services:
      - protocol: udp
        port: 1234
connections:
  - from: Device
    to: Backend
    service: UDP:1234
`

const flowLine = `{"kind":"flow","protocol":"udp","from":{"hw":"1:0:0:0:0:1","ip":"192.168.0.1","port":1100},"to":{"hw":"1:0:0:0:0:2","ip":"192.168.0.2","port":1234}}`

// isolate keeps the config search path away from the developer's files
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", dir)
	t.Setenv(config.EnvConfigPath, "")
	t.Setenv(config.EnvDatabase, "")
	return dir
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()
	if cmd.Use != "netconform" {
		t.Errorf("Expected use 'netconform', got '%s'", cmd.Use)
	}
	for _, name := range []string{"check", "replay", "serve", "ids"} {
		if sub, _, err := cmd.Find([]string{name}); err != nil || sub.Name() != name {
			t.Errorf("missing subcommand %s", name)
		}
	}
}

func TestSetupLogger(t *testing.T) {
	levels := []string{"DEBUG", "INFO", "WARN", "ERROR", "UNKNOWN"}
	for _, lvl := range levels {
		if l := setupLogger(lvl, ""); l == nil {
			t.Errorf("setupLogger(%s) returned nil", lvl)
		}
	}

	path := filepath.Join(t.TempDir(), "netconform.log")
	setupLogger("INFO", path).Info("hello")
	data, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(data), "hello") {
		t.Errorf("log file content = %q, err %v", data, err)
	}
}

func TestApplyNetworks(t *testing.T) {
	nets := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}

	s := domain.NewSystem("default")
	applyNetworks(s, nets)
	if len(s.IPNetworks) != 1 || s.IPNetworks[0] != nets[0] {
		t.Errorf("networks = %v", s.IPNetworks)
	}

	declared := netip.MustParsePrefix("172.16.0.0/12")
	s = domain.NewSystem("declared")
	s.IPNetworks = []netip.Prefix{declared}
	applyNetworks(s, nets)
	if s.IPNetworks[0] != declared {
		t.Errorf("declared networks replaced: %v", s.IPNetworks)
	}
}

func TestApplyDatabaseFlag(t *testing.T) {
	cfg := config.DefaultConfig()
	applyDatabaseFlag(cfg, "mysql:user:pw@tcp(db:3306)/netconform")
	if cfg.Database.Driver != "mysql" || cfg.Database.DSN != "user:pw@tcp(db:3306)/netconform" {
		t.Errorf("database = %+v", cfg.Database)
	}

	applyDatabaseFlag(cfg, "memory")
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %q", cfg.Database.Driver)
	}
}

func TestCheck(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)
	events := writeFile(t, dir, "capture.jsonl", flowLine+"\n")

	out, err := execute(t, "check", "--model", model, "--db", "memory", "--no-color", events)
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	for _, s := range []string{"IoT [pass]", "Device [pass]", "Backend"} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
}

func TestCheckJSON(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)

	out, err := execute(t, "check", "--model", model, "--db", "memory", "--json")
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	var rep service.Report
	if err := json.Unmarshal([]byte(out), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if rep.System != "IoT" || len(rep.Entities) != 2 {
		t.Errorf("report = %+v", rep)
	}
}

func TestCheckWithoutModel(t *testing.T) {
	isolate(t)
	if _, err := execute(t, "check", "--db", "memory"); err == nil {
		t.Error("expected error without a model")
	}
}

func TestReplaySavesFilter(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)
	events := writeFile(t, dir, "capture.jsonl", flowLine+"\n")
	db := "sqlite:" + filepath.Join(dir, "netconform.db")
	filter := filepath.Join(dir, "sources.ini")

	if out, err := execute(t, "check", "--model", model, "--db", db, "--no-color", "--label", "pcap", events); err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}

	out, err := execute(t, "replay", "--model", model, "--db", db, "--no-color",
		"--filter", filter, "--disable", "pcap", "--save")
	if err != nil {
		t.Fatalf("replay failed: %v\n%s", err, out)
	}
	if strings.Contains(out, "Device [pass]") {
		t.Errorf("disabled evidence was replayed:\n%s", out)
	}

	saved, err := config.LoadSourceFilter(filter)
	if err != nil {
		t.Fatal(err)
	}
	if enabled, ok := saved["pcap"]; !ok || enabled {
		t.Errorf("saved filter = %v", saved)
	}
}

func TestIDs(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)

	out, err := execute(t, "ids", "--model", model, "--db", "memory", "--json")
	if err != nil {
		t.Fatalf("ids failed: %v\n%s", err, out)
	}
	var ids []service.Identity
	if err := json.Unmarshal([]byte(out), &ids); err != nil {
		t.Fatalf("decode identities: %v\n%s", err, out)
	}
	names := make(map[string]bool)
	for _, id := range ids {
		names[id.Name] = true
	}
	if !names["Device"] || !names["Backend"] {
		t.Errorf("identities = %+v", ids)
	}
}

const nmapReport = `<?xml version="1.0" encoding="UTF-8"?>
<nmaprun scanner="nmap" args="nmap -oX scan.xml 192.168.0.2" start="1700000000" version="7.94">
<host>
<status state="up" reason="arp-response"/>
<address addr="192.168.0.2" addrtype="ipv4"/>
<ports>
<port protocol="tcp" portid="22"><state state="open" reason="syn-ack"/><service name="ssh"/></port>
</ports>
</host>
</nmaprun>
`

func TestCheckYAMLEvidenceAndRecord(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)
	manual := writeFile(t, dir, "manual.yaml", "- kind: service-scan\n  endpoint: 192.168.0.2/udp:1234\n")
	scan := writeFile(t, dir, "scan.xml", nmapReport)
	record := filepath.Join(dir, "recorded.jsonl")

	out, err := execute(t, "check", "--model", model, "--db", "memory", "--no-color",
		"--nmap", scan, "--record", record, manual)
	if err != nil {
		t.Fatalf("check failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "TCP:22") {
		t.Errorf("scanned service missing from report:\n%s", out)
	}

	data, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"host-scan"`) {
		t.Errorf("recorded events:\n%s", data)
	}
}

func TestInit(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "conf", "netconform.yaml")

	out, err := execute(t, "init", "--config", path, "--model", "lock.yaml")
	if err != nil {
		t.Fatalf("init failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Model: lock.yaml") {
		t.Errorf("summary missing model:\n%s", out)
	}

	cfg, _, err := config.LoadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Model.Path != "lock.yaml" {
		t.Errorf("model path = %q", cfg.Model.Path)
	}

	if _, err := execute(t, "init", "--config", path); err == nil {
		t.Error("init overwrote an existing config without --force")
	}
	if _, err := execute(t, "init", "--config", path, "--force"); err != nil {
		t.Errorf("init --force: %v", err)
	}
}

func TestNmapOptions(t *testing.T) {
	tests := []struct {
		name        string
		scan        config.ScanConfig
		wantTargets int
		wantErr     bool
	}{
		{"reports only", config.ScanConfig{}, 0, false},
		{"live scan", config.ScanConfig{Targets: []string{"192.168.0.0/24"}, Ports: "22,80-443", UDP: true}, 1, false},
		{"bad ports", config.ScanConfig{Targets: []string{"192.168.0.0/24"}, Ports: "0-99999"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := nmapOptions(collectOptions{reports: []string{"scan.xml"}, scan: tt.scan})
			if tt.wantErr {
				if err == nil {
					t.Error("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("nmapOptions() error = %v", err)
			}
			if got := len(adapter.NewNmapAdapter(opts...).Targets()); got != tt.wantTargets {
				t.Errorf("targets = %d, want %d", got, tt.wantTargets)
			}
		})
	}
}

func TestCheckScanRejectsPorts(t *testing.T) {
	dir := isolate(t)
	model := writeFile(t, dir, "model.yaml", testModel)

	out, err := execute(t, "check", "--model", model, "--db", "memory",
		"--scan", "192.168.0.0/24", "--ports", "70000")
	if err == nil || !strings.Contains(err.Error(), "scan ports") {
		t.Errorf("check error = %v\n%s", err, out)
	}
}
