package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menuflow/qbremote/pkg/config"
)

// fakeQB emulates the qBittorrent web API endpoints the accessor uses.
type fakeQB struct {
	mux            *http.ServeMux
	logins         atomic.Int32
	forceForbidden atomic.Int32
}

func newFakeQB(t *testing.T) (*fakeQB, *httptest.Server) {
	t.Helper()
	f := &fakeQB{mux: http.NewServeMux()}

	f.mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
			w.Write([]byte("Fails."))
			return
		}
		f.logins.Add(1)
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "abc123", Path: "/"})
		w.Write([]byte("Ok."))
	})

	authed := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if f.forceForbidden.Load() > 0 {
				f.forceForbidden.Add(-1)
				w.WriteHeader(http.StatusForbidden)
				return
			}
			c, err := r.Cookie("SID")
			if err != nil || c.Value != "abc123" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}

	f.mux.HandleFunc("/api/v2/app/version", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("v5.0.2\n"))
	}))
	f.mux.HandleFunc("/api/v2/app/webapiVersion", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("2.11.2"))
	}))
	f.mux.HandleFunc("/api/v2/transfer/info", authed(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"dl_info_speed":1048576,"up_info_speed":524288,"dl_info_data":73400320,"up_info_data":36700160}`))
	}))

	srv := httptest.NewServer(f.mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func TestQBittorrentTransferInfo(t *testing.T) {
	_, srv := newFakeQB(t)
	qb, err := NewQBittorrent("main", srv.URL, "admin", "secret")
	require.NoError(t, err)

	info, err := qb.TransferInfo(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1048576), info.DownloadSpeed)
	assert.Equal(t, int64(524288), info.UploadSpeed)
	assert.Equal(t, int64(73400320), info.DownloadedBytes)
	assert.Equal(t, int64(36700160), info.UploadedBytes)
}

func TestQBittorrentVersion(t *testing.T) {
	_, srv := newFakeQB(t)
	qb, err := NewQBittorrent("main", srv.URL, "admin", "secret")
	require.NoError(t, err)

	v, err := qb.Version(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "v5.0.2", v.App)
	assert.Equal(t, "2.11.2", v.WebAPI)
}

func TestQBittorrentLoginOnce(t *testing.T) {
	f, srv := newFakeQB(t)
	qb, err := NewQBittorrent("main", srv.URL, "admin", "secret")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, qb.Ping(ctx))
	require.NoError(t, qb.Ping(ctx))
	_, err = qb.TransferInfo(ctx)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.logins.Load(), "cookie should be reused across calls")
}

func TestQBittorrentReloginAfterForbidden(t *testing.T) {
	f, srv := newFakeQB(t)
	qb, err := NewQBittorrent("main", srv.URL, "admin", "secret")
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, qb.Ping(ctx))
	require.Equal(t, int32(1), f.logins.Load())

	// Server forgets the session; the next call must log in again and
	// retry transparently.
	f.forceForbidden.Store(1)

	v, err := qb.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v5.0.2", v.App)
	assert.Equal(t, int32(2), f.logins.Load())
}

func TestQBittorrentBadCredentials(t *testing.T) {
	_, srv := newFakeQB(t)
	qb, err := NewQBittorrent("main", srv.URL, "admin", "wrong")
	require.NoError(t, err)

	err = qb.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login rejected")
}

func TestRegistryRunningNames(t *testing.T) {
	_, srv := newFakeQB(t)

	r := NewRegistry([]config.DownloaderConfig{
		{Name: "main", URL: srv.URL, Username: "admin", Password: "secret", Enabled: true},
		{Name: "dead", URL: "http://127.0.0.1:1", Username: "x", Password: "y", Enabled: true},
		{Name: "off", URL: srv.URL, Enabled: false},
	})

	assert.Equal(t, []string{"main", "dead"}, r.Names())

	running := r.RunningNames(context.Background())
	assert.Equal(t, []string{"main"}, running)

	_, err := r.Instance("off")
	assert.Error(t, err)

	acc, err := r.Instance("main")
	require.NoError(t, err)
	assert.Equal(t, "main", acc.Name())
}
