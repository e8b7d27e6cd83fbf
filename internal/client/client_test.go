// Tests for the REST connection: endpoint construction, authentication,
// response decoding, server errors, and cancellation of an in-flight query.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

// ///////////////////////////////////////////////
// Helpers
// ///////////////////////////////////////////////

// newTestConn starts srv and returns a REST connection pointed at it.
func newTestConn(t *testing.T, handler http.HandlerFunc, mutate func(*Options)) *REST {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse server URL: %v", err)
	}
	host, portStr, err := net.SplitHostPort(u.Host)
	if err != nil {
		t.Fatalf("split host: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	opts := Options{Host: host, Port: port, User: "root", Password: "taosdata"}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := NewREST(opts)
	if err != nil {
		t.Fatalf("NewREST: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

// ///////////////////////////////////////////////
// Endpoint
// ///////////////////////////////////////////////

func TestEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		want    string
		wantErr bool
	}{
		{"plain", Options{Host: "localhost", Port: 6041}, "http://localhost:6041/rest/sql", false},
		{"database", Options{Host: "db.local", Port: 6041, Database: "power"}, "http://db.local:6041/rest/sql/power", false},
		{"https token", Options{Scheme: "https", Host: "cloud.example", Port: 443, Token: "abc"}, "https://cloud.example:443/rest/sql?token=abc", false},
		{"ipv6 loopback", Options{Host: "::1", Port: 6041}, "http://[::1]:6041/rest/sql", false},
		{"ipv6 address", Options{Host: "2001:db8::1", Port: 6041}, "http://[2001:db8::1]:6041/rest/sql", false},
		{"missing host", Options{Port: 6041}, "", true},
		{"zero port", Options{Host: "localhost"}, "", true},
		{"port too large", Options{Host: "localhost", Port: 70000}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Endpoint(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Endpoint() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Endpoint() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ///////////////////////////////////////////////
// Query
// ///////////////////////////////////////////////

func TestQueryResultSet(t *testing.T) {
	var gotBody, gotUser, gotPath string
	c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotUser, _, _ = r.BasicAuth()
		gotPath = r.URL.Path
		io.WriteString(w, `{"code":0,"column_meta":[["ts","TIMESTAMP",8],["current","FLOAT",4],["location","VARCHAR",16]],"data":[["2024-01-01T00:00:00.000Z",10.3,"SF"],["2024-01-01T00:00:01.000Z",null,"LA"]],"rows":2}`)
	}, func(o *Options) { o.Database = "power" })

	res, err := c.Query(context.Background(), "select * from meters;")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotBody != "select * from meters;" {
		t.Errorf("request body = %q", gotBody)
	}
	if gotUser != "root" {
		t.Errorf("basic auth user = %q, want root", gotUser)
	}
	if gotPath != "/rest/sql/power" {
		t.Errorf("path = %q, want /rest/sql/power", gotPath)
	}
	if len(res.Columns) != 3 || res.Columns[1].Name != "current" || res.Columns[1].Type != "FLOAT" {
		t.Errorf("columns = %+v", res.Columns)
	}
	if len(res.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(res.Rows))
	}
	if res.IsUpdate {
		t.Error("result set flagged as update")
	}
}

func TestQueryAffectedRows(t *testing.T) {
	c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"code":0,"column_meta":[["affected_rows","INT",4]],"data":[[3]],"rows":1}`)
	}, nil)

	res, err := c.Query(context.Background(), "insert into t values (now, 1)")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !res.IsUpdate || res.Affected != 3 {
		t.Errorf("got IsUpdate=%v Affected=%d, want true 3", res.IsUpdate, res.Affected)
	}
}

func TestQueryTokenAuth(t *testing.T) {
	var gotToken string
	var hasAuth bool
	c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.URL.Query().Get("token")
		_, _, hasAuth = r.BasicAuth()
		io.WriteString(w, `{"code":0,"column_meta":[],"data":[],"rows":0}`)
	}, func(o *Options) { o.Token = "cloud-token" })

	if _, err := c.Query(context.Background(), "show databases"); err != nil {
		t.Fatalf("Query: %v", err)
	}
	if gotToken != "cloud-token" {
		t.Errorf("token = %q, want cloud-token", gotToken)
	}
	if hasAuth {
		t.Error("basic auth sent alongside token")
	}
}

func TestQueryServerError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"error code", http.StatusOK, `{"code":9731,"desc":"Database not exist"}`, "Database not exist"},
		{"error code with status", http.StatusBadRequest, `{"code":534,"desc":"Syntax error in SQL"}`, "Syntax error"},
		{"non-json failure", http.StatusInternalServerError, `oops`, "http status 500"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}, nil)

			_, err := c.Query(context.Background(), "select 1")
			if !errors.Is(err, ErrQueryFailed) {
				t.Fatalf("Query error = %v, want ErrQueryFailed", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestQueryNumericColumnTypes(t *testing.T) {
	c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"succ","code":0,"column_meta":[["ts",9,8],["v",4,4]],"data":[["2024-01-01 00:00:00.000",1]],"rows":1}`)
	}, nil)

	res, err := c.Query(context.Background(), "select * from t")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Columns[0].Type != "9" || res.Columns[0].Length != 8 {
		t.Errorf("column 0 = %+v, want type 9 length 8", res.Columns[0])
	}
}

func TestParseColumnsMalformed(t *testing.T) {
	tests := []struct {
		name string
		meta string
		want string
	}{
		{"short triple", `[["ts"]]`, "malformed metadata"},
		{"bad name", `[[1,"INT",4]]`, "column 0 name"},
		{"bad length", `[["ts","TIMESTAMP",8],["v","INT","four"]]`, "column 1 length"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var meta [][]json.RawMessage
			if err := json.Unmarshal([]byte(tt.meta), &meta); err != nil {
				t.Fatal(err)
			}
			_, err := parseColumns(meta)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("parseColumns(%s) error = %v, want %q", tt.meta, err, tt.want)
			}
		})
	}
}

func TestQueryCancelled(t *testing.T) {
	started := make(chan struct{})
	c := newTestConn(t, func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	done := make(chan error, 1)
	go func() {
		_, err := c.Query(ctx, "select * from huge")
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Query error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Query did not return after cancel")
	}
}

// ///////////////////////////////////////////////
// Render
// ///////////////////////////////////////////////

func TestRender(t *testing.T) {
	res, err := decodeResponse(http.StatusOK, []byte(`{"code":0,"column_meta":[["name","VARCHAR",8],["n","INT",4]],"data":[["a",1],["b",null]],"rows":2}`))
	if err != nil {
		t.Fatalf("decodeResponse: %v", err)
	}
	res.Elapsed = 1500 * time.Microsecond

	var buf bytes.Buffer
	if err := res.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"name", "NULL", "Query OK, 2 row(s) in set (0.001500s)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderUpdate(t *testing.T) {
	res := &Result{IsUpdate: true, Affected: 5, Elapsed: time.Millisecond}
	var buf bytes.Buffer
	if err := res.Render(&buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := buf.String(); got != "Query OK, 5 row(s) affected (0.001000s)\n" {
		t.Errorf("Render() = %q", got)
	}
}
