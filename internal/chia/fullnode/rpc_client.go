// Package fullnode talks to the chia full node RPC over mutually authenticated HTTPS.
package fullnode

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/goodnatureofminers/chiaindexer-backend/internal/chia/model"
)

// Config describes how to reach the node RPC. CertFile/KeyFile are the node's
// private full_node client pair; without CAFile the server certificate is not
// verified, matching the node's self-signed setup.
type Config struct {
	URL      string
	CertFile string
	KeyFile  string
	CAFile   string
	Timeout  time.Duration
}

// RPCClient is an instrumented client for the endpoints the ingestor uses.
type RPCClient struct {
	baseURL    string
	httpClient *http.Client
	rpcMetrics RPCMetrics
}

// NewRPCClient validates cfg and constructs the client.
func NewRPCClient(cfg Config, rpcMetrics RPCMetrics) (*RPCClient, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse rpc url: %w", err)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return nil, fmt.Errorf("rpc url scheme %q not supported", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("rpc url missing host")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if parsed.Scheme == "https" {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = tlsConfig
	}

	return &RPCClient{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		httpClient: &http.Client{Transport: transport, Timeout: cfg.Timeout},
		rpcMetrics: rpcMetrics,
	}, nil
}

func newTLSConfig(cfg Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CertFile != "" || cfg.KeyFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load rpc client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{pair}
	}
	if cfg.CAFile == "" {
		tlsConfig.InsecureSkipVerify = true //nolint:gosec // node RPC uses a private self-signed CA
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("read rpc ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("rpc ca file contains no certificates")
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}

type rpcResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type blockchainStateResponse struct {
	rpcResponse
	BlockchainState struct {
		Peak *struct {
			Height uint32 `json:"height"`
		} `json:"peak"`
	} `json:"blockchain_state"`
}

type getBlocksRequest struct {
	Start             uint32 `json:"start"`
	End               uint32 `json:"end"`
	ExcludeHeaderHash bool   `json:"exclude_header_hash"`
	ExcludeReorged    bool   `json:"exclude_reorged"`
}

type getBlocksResponse struct {
	rpcResponse
	Blocks []json.RawMessage `json:"blocks"`
}

// GetChainState returns the node's current peak.
func (c *RPCClient) GetChainState(ctx context.Context) (state model.ChainState, err error) {
	started := time.Now()
	defer func() {
		c.rpcMetrics.Observe("get_blockchain_state", err, started)
	}()

	var resp blockchainStateResponse
	if err = c.call(ctx, "get_blockchain_state", struct{}{}, &resp, &resp.rpcResponse); err != nil {
		return model.ChainState{}, err
	}
	if resp.BlockchainState.Peak == nil {
		return model.ChainState{}, errors.New("node has no peak yet")
	}
	return model.ChainState{PeakHeight: resp.BlockchainState.Peak.Height}, nil
}

// GetBlocks returns up to count blocks starting at start, skipping reorged blocks.
func (c *RPCClient) GetBlocks(ctx context.Context, start, count uint32) (blocks []model.FullBlock, err error) {
	started := time.Now()
	defer func() {
		c.rpcMetrics.Observe("get_blocks", err, started)
	}()

	req := getBlocksRequest{Start: start, End: start + count, ExcludeHeaderHash: true, ExcludeReorged: true}
	var resp getBlocksResponse
	if err = c.call(ctx, "get_blocks", req, &resp, &resp.rpcResponse); err != nil {
		return nil, err
	}

	blocks = make([]model.FullBlock, 0, len(resp.Blocks))
	for _, raw := range resp.Blocks {
		b, convErr := convertBlock(raw)
		if convErr != nil {
			err = fmt.Errorf("convert block: %w", convErr)
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func (c *RPCClient) call(ctx context.Context, endpoint string, req, resp any, status *rpcResponse) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", endpoint, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", endpoint, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	payload, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s: unexpected status %d", endpoint, httpResp.StatusCode)
	}
	if err := json.Unmarshal(payload, resp); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	if !status.Success {
		return fmt.Errorf("call %s: %s", endpoint, status.Error)
	}
	return nil
}
