package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"github.com/chainmirror/indexd/internal/logging"
)

// pooling of api calls; block pulls during catch-up reuse connections
var defaultHTTPClient = &http.Client{
	Transport: &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,

		MaxIdleConns:        50,
		MaxIdleConnsPerHost: 25,

		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	},
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client talks JSON-RPC to a bitcoind-compatible node.
type Client struct {
	endpoint string
	user     string
	pass     string
	http     *http.Client
}

var _ Source = (*Client)(nil)

func NewClient(endpoint, user, pass string) *Client {
	return &Client{
		endpoint: endpoint,
		user:     user,
		pass:     pass,
		http:     defaultHTTPClient,
	}
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	payload, err := json.Marshal(rpcRequest{
		JSONRPC: "1.0",
		ID:      "chainmirror-indexd",
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("error marshaling RPC data: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("error creating request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	auth := base64.StdEncoding.EncodeToString([]byte(c.user + ":" + c.pass))
	req.Header.Add("Authorization", "Basic "+auth)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error performing request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		logging.L.Err(err).Int("status_code", resp.StatusCode).Msg("error reading response body")
		return err
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		logging.L.Err(err).
			Int("status_code", resp.StatusCode).
			Str("body", string(body)).
			Msg("error unmarshaling response")
		return err
	}

	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s failed: %s (code %d)", method, rpcResp.Error.Message, rpcResp.Error.Code)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("rpc %s failed: status %d", method, resp.StatusCode)
	}

	return json.Unmarshal(rpcResp.Result, result)
}

func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := c.call(ctx, "getblockcount", []any{}, &height); err != nil {
		return 0, err
	}
	return height, nil
}

func (c *Client) BlockHashAt(ctx context.Context, height int64) (*chainhash.Hash, error) {
	var hashStr string
	if err := c.call(ctx, "getblockhash", []any{height}, &hashStr); err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(hashStr)
}

func (c *Client) FetchBlock(ctx context.Context, hash *chainhash.Hash) (*btcutil.Block, error) {
	var blockHex string
	// verbosity 0 returns the raw serialized block
	if err := c.call(ctx, "getblock", []any{hash.String(), 0}, &blockHex); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(blockHex)
	if err != nil {
		return nil, fmt.Errorf("malformed block %s: %v", hash, err)
	}
	return btcutil.NewBlockFromBytes(raw)
}

func (c *Client) MempoolTxids(ctx context.Context) ([]chainhash.Hash, error) {
	var txidStrs []string
	if err := c.call(ctx, "getrawmempool", []any{}, &txidStrs); err != nil {
		return nil, err
	}

	txids := make([]chainhash.Hash, 0, len(txidStrs))
	for _, s := range txidStrs {
		h, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, err
		}
		txids = append(txids, *h)
	}
	return txids, nil
}

func (c *Client) FetchTransaction(ctx context.Context, txid *chainhash.Hash) (*btcutil.Tx, error) {
	var txHex string
	if err := c.call(ctx, "getrawtransaction", []any{txid.String(), false}, &txHex); err != nil {
		return nil, err
	}

	raw, err := hex.DecodeString(txHex)
	if err != nil {
		return nil, fmt.Errorf("malformed transaction %s: %v", txid, err)
	}
	return btcutil.NewTxFromBytes(raw)
}
