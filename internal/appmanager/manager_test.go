package appmanager

import (
	"context"
	"errors"
	"strings"
	"testing"
)

const sampleYAML = `
services:
  - name: gateway
    start_order: 7
    config:
      port: 8081
  - name: logger
    start_order: 1
    config:
      log_dir: logs
  - name: settlement
    start_order: 3
    config:
      port: 6143
      workers: 4
`

func TestParseServiceSequence(t *testing.T) {
	seq, err := ParseServiceSequence([]byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, s := range seq {
		names = append(names, s.Name)
	}
	if strings.Join(names, ",") != "logger,settlement,gateway" {
		t.Fatalf("order %v", names)
	}
	if seq[1].Config["workers"] != 4 {
		t.Fatalf("workers = %#v", seq[1].Config["workers"])
	}
}

type recordingService struct {
	name    string
	stopErr error
	log     *[]string
}

func (r *recordingService) Name() string { return r.name }
func (r *recordingService) Start() error {
	*r.log = append(*r.log, "start "+r.name)
	return nil
}
func (r *recordingService) Stop(context.Context) error {
	*r.log = append(*r.log, "stop "+r.name)
	return r.stopErr
}

func TestStartStopOrder(t *testing.T) {
	var log []string
	am := NewAppManager()
	am.RegisterService(&recordingService{name: "a", log: &log})
	am.RegisterService(&recordingService{name: "b", log: &log, stopErr: errors.New("busy")})
	am.RegisterService(&recordingService{name: "c", log: &log})

	if err := am.StartAll(); err != nil {
		t.Fatal(err)
	}
	err := am.StopAll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "service b") {
		t.Fatalf("stop error %v", err)
	}
	want := "start a,start b,start c,stop c,stop b,stop a"
	if strings.Join(log, ",") != want {
		t.Fatalf("got %v", log)
	}
	if am.GetServiceByName("b") == nil || am.GetServiceByName("zzz") != nil {
		t.Fatalf("lookup by name broken")
	}
}

func TestAutoRegisterUnknown(t *testing.T) {
	am := NewAppManager()
	err := am.AutoRegisterServices([]ServiceConfig{{Name: "gateway"}, {Name: "fx"}})
	if err == nil || !strings.Contains(err.Error(), "fx") {
		t.Fatalf("unknown service not reported: %v", err)
	}
	if am.GetServiceByName("gateway") == nil {
		t.Fatalf("known service not registered")
	}
}
