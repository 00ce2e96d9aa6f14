package transport

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func robotsServer(t *testing.T, robots string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(robots))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q", got)
		}
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestPoliteTransportHonoursRobots(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /private\n")
	client := &http.Client{Transport: New(nil, srv.Client(), Options{
		RespectRobots: true,
		DelayProfile:  ProfileNone,
	})}

	resp, err := client.Get(srv.URL + "/public")
	if err != nil {
		t.Fatalf("public: %v", err)
	}
	resp.Body.Close()

	_, err = client.Get(srv.URL + "/private/x")
	if !errors.Is(err, ErrDisallowed) {
		t.Fatalf("private err = %v, want ErrDisallowed", err)
	}
}

func TestPoliteTransportRobotsDisabled(t *testing.T) {
	srv := robotsServer(t, "User-agent: *\nDisallow: /\n")
	client := &http.Client{Transport: New(nil, srv.Client(), Options{DelayProfile: ProfileNone})}

	resp, err := client.Get(srv.URL + "/anything")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
}

func TestDelayWaitRespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewDelay(ProfileCautious)
	start := time.Now()
	if err := d.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > time.Second {
		t.Fatal("Wait did not return promptly on cancelled context")
	}
}

func TestDelayBounds(t *testing.T) {
	d := NewDelay(ProfileAggressive)
	for i := 0; i < 100; i++ {
		got := d.RequestDelay()
		if got < d.MinDelay || got >= d.MaxDelay {
			t.Fatalf("delay %s outside [%s, %s)", got, d.MinDelay, d.MaxDelay)
		}
	}
	if !DelayProfile("normal").Valid() || DelayProfile("turbo").Valid() {
		t.Fatal("profile validation mismatch")
	}
}
