package realdebrid

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"github.com/goccy/go-json"
	"github.com/magnetdl/magnetdl/internal/config"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/internal/request"
	"github.com/magnetdl/magnetdl/internal/utils"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"github.com/rs/zerolog"
	"io"
	"net/http"
	gourl "net/url"
	"strings"
	"time"
)

const (
	StatusMagnetConversion = "magnet_conversion"
	StatusWaitingSelection = "waiting_files_selection"
	StatusDownloaded       = types.StatusDownloaded
)

type RealDebrid struct {
	Name   string
	Host   string `json:"host"`
	APIKey string
	client *request.Client
	logger zerolog.Logger

	policyFor         func(size int64) PollPolicy
	selectionInterval time.Duration
	selectionAttempts int
	postDelay         time.Duration
	unrestrictRate    float64
	unrestrictBurst   int
	clientOpts        []request.ClientOption
}

var _ types.Client = (*RealDebrid)(nil)

func (r *RealDebrid) GetName() string {
	return r.Name
}

func (r *RealDebrid) GetLogger() zerolog.Logger {
	return r.logger
}

// call sends one request and folds every service-side failure into *APIError.
func (r *RealDebrid) call(ctx context.Context, method, endpoint string, form gourl.Values) ([]byte, error) {
	url := fmt.Sprintf("%s%s", r.Host, endpoint)
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	resp, err := r.client.MakeRequest(req)
	if err != nil {
		var httpErr *request.HTTPError
		if errors.As(err, &httpErr) {
			return nil, &APIError{Endpoint: endpoint, Err: httpErr}
		}
		return nil, fmt.Errorf("realdebrid %s: %w", endpoint, err)
	}
	return resp, nil
}

func (r *RealDebrid) addMagnet(ctx context.Context, magnet string) (string, error) {
	resp, err := r.call(ctx, http.MethodPost, "/torrents/addMagnet", gourl.Values{
		"magnet": {magnet},
	})
	if err != nil {
		return "", err
	}
	var data AddMagnetSchema
	if err := json.Unmarshal(resp, &data); err != nil {
		return "", fmt.Errorf("decoding addMagnet response: %w", err)
	}
	if data.Id == "" {
		return "", fmt.Errorf("addMagnet: %w (id)", ErrMissingField)
	}
	return data.Id, nil
}

func (r *RealDebrid) getTorrentInfo(ctx context.Context, id string) (*TorrentInfo, error) {
	resp, err := r.call(ctx, http.MethodGet, "/torrents/info/"+id, nil)
	if err != nil {
		return nil, err
	}
	var data TorrentInfo
	if err := json.Unmarshal(resp, &data); err != nil {
		return nil, fmt.Errorf("decoding torrent info: %w", err)
	}
	if data.Status == "" {
		return nil, fmt.Errorf("torrent info: %w (status)", ErrMissingField)
	}
	return &data, nil
}

func (r *RealDebrid) selectFiles(ctx context.Context, id string) error {
	_, err := r.call(ctx, http.MethodPost, "/torrents/selectFiles/"+id, gourl.Values{
		"files": {"all"},
	})
	return err
}

// awaitSelection waits until the torrent leaves magnet conversion. It reports
// whether the files still need to be selected.
func (r *RealDebrid) awaitSelection(ctx context.Context, id string) (bool, error) {
	for attempt := 1; attempt <= r.selectionAttempts; attempt++ {
		info, err := r.getTorrentInfo(ctx, id)
		if err != nil {
			return false, err
		}
		switch {
		case info.Status == StatusWaitingSelection:
			return true, nil
		case info.Status == StatusMagnetConversion:
		case IsTerminal(info.Status) && info.Status != StatusDownloaded:
			return false, &StatusError{Id: id, Status: info.Status}
		default:
			// Selection already happened, usually a magnet the account added before
			return false, nil
		}
		if attempt < r.selectionAttempts {
			if err := sleep(ctx, r.selectionInterval); err != nil {
				return false, err
			}
		}
	}
	return false, ErrSelectionStuck
}

// SubmitMagnet adds the magnet, selects every file and returns the torrent as the service sees it.
func (r *RealDebrid) SubmitMagnet(ctx context.Context, magnet string) (*types.Torrent, error) {
	id, err := r.addMagnet(ctx, magnet)
	if err != nil {
		return nil, err
	}
	r.logger.Info().Msgf("Magnet submitted, torrent id %s", id)

	pending, err := r.awaitSelection(ctx, id)
	if err != nil {
		return &types.Torrent{Id: id}, err
	}
	if pending {
		if err := sleep(ctx, r.postDelay); err != nil {
			return &types.Torrent{Id: id}, err
		}
		if err := r.selectFiles(ctx, id); err != nil {
			return &types.Torrent{Id: id}, err
		}
		if err := sleep(ctx, r.postDelay); err != nil {
			return &types.Torrent{Id: id}, err
		}
	}

	info, err := r.getTorrentInfo(ctx, id)
	if err != nil {
		return &types.Torrent{Id: id}, err
	}
	return toTorrent(info, id), nil
}

func toTorrent(info *TorrentInfo, id string) *types.Torrent {
	name := utils.RemoveInvalidChars(cmp.Or(info.Filename, info.OriginalFilename))
	files := make([]string, 0, len(info.Files))
	for _, f := range info.Files {
		if f.Selected == 1 {
			files = append(files, f.Path)
		}
	}
	if len(files) == 0 {
		for _, f := range info.Files {
			files = append(files, f.Path)
		}
	}
	return &types.Torrent{
		Id:       cmp.Or(info.ID, id),
		InfoHash: info.Hash,
		Name:     cmp.Or(name, types.UnknownName),
		Status:   info.Status,
		Files:    files,
		Links:    info.Links,
		Bytes:    info.Bytes,
	}
}

// GetTorrent refreshes a torrent by id.
func (r *RealDebrid) GetTorrent(ctx context.Context, id string) (*types.Torrent, error) {
	info, err := r.getTorrentInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	return toTorrent(info, id), nil
}

func (r *RealDebrid) DeleteTorrent(ctx context.Context, id string) error {
	if _, err := r.call(ctx, http.MethodDelete, "/torrents/delete/"+id, nil); err != nil {
		r.logger.Info().Msgf("Error deleting torrent: %s", err)
		return err
	}
	r.logger.Info().Msgf("Torrent: %s deleted", id)
	return nil
}

type Option func(*RealDebrid)

// WithPollPolicy replaces the size-tiered polling budget.
func WithPollPolicy(policyFor func(size int64) PollPolicy) Option {
	return func(r *RealDebrid) {
		r.policyFor = policyFor
	}
}

// WithSelectionPolling sets how long SubmitMagnet waits for file selection.
func WithSelectionPolling(interval time.Duration, attempts int) Option {
	return func(r *RealDebrid) {
		r.selectionInterval = interval
		r.selectionAttempts = max(attempts, 1)
	}
}

// WithPostDelay sets the pause around the file selection call.
func WithPostDelay(d time.Duration) Option {
	return func(r *RealDebrid) {
		r.postDelay = d
	}
}

// WithUnrestrictRate sets the bucket used by UnrestrictLinks.
func WithUnrestrictRate(perSecond float64, burst int) Option {
	return func(r *RealDebrid) {
		r.unrestrictRate = perSecond
		r.unrestrictBurst = max(burst, 1)
	}
}

// WithRequestOptions tunes the underlying HTTP client (retries, backoff, timeout).
func WithRequestOptions(opts ...request.ClientOption) Option {
	return func(r *RealDebrid) {
		r.clientOpts = append(r.clientOpts, opts...)
	}
}

func New(rd config.RealDebrid, opts ...Option) *RealDebrid {
	rl := request.ParseRateLimit(rd.RateLimit)
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", rd.APIKey),
	}
	log := logger.New("realdebrid")
	r := &RealDebrid{
		Name:              "realdebrid",
		Host:              strings.TrimRight(rd.Host, "/"),
		APIKey:            rd.APIKey,
		logger:            log,
		policyFor:         PollPolicyFor,
		selectionInterval: 2 * time.Second,
		selectionAttempts: 10,
		postDelay:         time.Second,
		unrestrictRate:    4,
		unrestrictBurst:   4,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.client = request.New(append([]request.ClientOption{
		request.WithHeaders(headers),
		request.WithRateLimiter(rl),
		request.WithProxy(rd.Proxy),
		request.WithLogger(log),
	}, r.clientOpts...)...)
	return r
}
