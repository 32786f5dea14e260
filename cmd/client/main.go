// Command client walks through the main API flows against a running server: register or
// log in, upload, organise, share and download.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloudsync/pkg/logger"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type client struct {
	base  string
	http  *http.Client
	token string
}

func (c *client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("%s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if !env.Success {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

func (c *client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, path, bytes.NewReader(b), "application/json", out)
}

func (c *client) upload(ctx context.Context, name string, content []byte, folderID *int64, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(content); err != nil {
		return err
	}
	if folderID != nil {
		if err := w.WriteField("folderId", fmt.Sprint(*folderID)); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/files/upload", &buf, w.FormDataContentType(), out)
}

func (c *client) fetch(ctx context.Context, path string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	return b, resp.Header, err
}

type authData struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
}

type fileData struct {
	ID            int64   `json:"id"`
	OriginalName  string  `json:"originalName"`
	Size          int64   `json:"size"`
	ShareToken    *string `json:"shareToken"`
	DownloadCount int64   `json:"downloadCount"`
}

type folderData struct {
	ID   int64  `json:"id"`
	Path string `json:"path"`
}

type statsData struct {
	UsedStorage    int64   `json:"usedStorage"`
	MaxStorage     int64   `json:"maxStorage"`
	TotalFiles     int     `json:"totalFiles"`
	TotalFolders   int     `json:"totalFolders"`
	UsedPercentage float64 `json:"usedPercentage"`
}

func checkHealth(ctx context.Context, addr string) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return err
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("status %s", resp.GetStatus())
	}
	return nil
}

func main() {
	base := flag.String("addr", "http://localhost:8080", "API base URL")
	healthAddr := flag.String("health", "localhost:50051", "gRPC health address")
	username := flag.String("user", "testuser_client", "username")
	password := flag.String("password", "password123", "password")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ctx, err := logger.New(ctx, "info")
	if err != nil {
		fmt.Println(err)
		return
	}
	log := logger.GetLogger(ctx)

	if err := checkHealth(ctx, *healthAddr); err != nil {
		log.Warn("health check failed", zap.Error(err))
	} else {
		fmt.Println("server is SERVING")
	}

	c := &client{base: strings.TrimRight(*base, "/"), http: &http.Client{Timeout: 20 * time.Second}}

	var auth authData
	err = c.postJSON(ctx, "/api/auth/register", map[string]string{
		"username": *username, "email": *username + "@example.com", "password": *password,
	}, &auth)
	if err != nil {
		fmt.Printf("register: %v; trying login\n", err)
		if err := c.postJSON(ctx, "/api/auth/login", map[string]string{
			"usernameOrEmail": *username, "password": *password,
		}, &auth); err != nil {
			log.Fatal("login", zap.Error(err))
		}
	}
	c.token = auth.Token
	fmt.Printf("authenticated as %s (id %d)\n", auth.Username, auth.UserID)

	var dir folderData
	name := fmt.Sprintf("smoke-%d", time.Now().Unix())
	if err := c.do(ctx, http.MethodPost, "/api/folders?name="+url.QueryEscape(name), nil, "", &dir); err != nil {
		log.Fatal("create folder", zap.Error(err))
	}
	fmt.Printf("created folder %s\n", dir.Path)

	content := []byte("hello from the smoke client\n")
	var f fileData
	if err := c.upload(ctx, "hello.txt", content, &dir.ID, &f); err != nil {
		log.Fatal("upload", zap.Error(err))
	}
	fmt.Printf("uploaded %s (%d bytes) as file %d\n", f.OriginalName, f.Size, f.ID)

	var listed []fileData
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/files/folder/%d", dir.ID), nil, "", &listed); err != nil {
		log.Fatal("list folder", zap.Error(err))
	}
	fmt.Printf("folder holds %d file(s)\n", len(listed))

	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/files/%d/share", f.ID), nil, "", &f); err != nil {
		log.Fatal("share", zap.Error(err))
	}
	if f.ShareToken == nil {
		log.Fatal("share: no token returned")
	}
	body, header, err := c.fetch(ctx, "/api/share/"+*f.ShareToken)
	if err != nil {
		log.Fatal("shared download", zap.Error(err))
	}
	if !bytes.Equal(body, content) {
		log.Fatal("shared download returned different content")
	}
	fmt.Printf("shared download ok (%s)\n", header.Get("Content-Disposition"))

	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/files/%d/share", f.ID), nil, "", nil); err != nil {
		log.Fatal("unshare", zap.Error(err))
	}
	if _, _, err := c.fetch(ctx, "/api/share/"+*f.ShareToken); err == nil {
		log.Fatal("revoked token still works")
	}
	fmt.Println("revoked token rejected")

	var stats statsData
	if err := c.do(ctx, http.MethodGet, "/api/files/stats", nil, "", &stats); err != nil {
		log.Fatal("stats", zap.Error(err))
	}
	fmt.Printf("using %d of %d bytes (%.4f%%), %d files, %d folders\n",
		stats.UsedStorage, stats.MaxStorage, stats.UsedPercentage, stats.TotalFiles, stats.TotalFolders)

	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/folders/%d", dir.ID), nil, "", nil); err != nil {
		log.Fatal("delete folder", zap.Error(err))
	}
	if err := c.do(ctx, http.MethodPost, "/api/auth/logout", nil, "", nil); err != nil {
		log.Fatal("logout", zap.Error(err))
	}
	fmt.Println("done")
}
