package workflow

import (
	"context"
	"errors"
	"fmt"
	"github.com/magnetdl/magnetdl/internal/logger"
	"github.com/magnetdl/magnetdl/internal/utils"
	"github.com/magnetdl/magnetdl/pkg/debrid/types"
	"github.com/magnetdl/magnetdl/pkg/downloader"
	"github.com/magnetdl/magnetdl/pkg/linkfile"
	"github.com/magnetdl/magnetdl/pkg/progress"
	"github.com/rs/zerolog"
	"io"
	"strings"
	"time"
)

const cleanupTimeout = 10 * time.Second

// Monitor watches dispatched tasks until they finish.
type Monitor interface {
	Run(ctx context.Context, files []*progress.File) (progress.Summary, error)
}

// LinkStore persists the resolved URLs of a run.
type LinkStore interface {
	Write(torrentName string, urls []string) (string, error)
	Publish(ctx context.Context, path string) error
}

type Options struct {
	// PrintLinks writes the direct URLs to Out.
	PrintLinks bool
	// Download hands the URLs to the daemon and monitors them.
	Download bool
	// OutputDir receives the links file when set.
	OutputDir string
	// Cleanup deletes the remote torrent when a run fails or is cancelled after submission.
	Cleanup bool
	Out     io.Writer
}

type Result struct {
	Outcome    Outcome
	State      State
	Err        error
	Torrent    *types.Torrent
	Links      []types.ResolvedLink
	Unresolved int
	LinksFile  string
	Summary    *progress.Summary
	Trace      []Transition
}

type Controller struct {
	cache   types.Client
	daemon  downloader.Daemon
	monitor Monitor
	links   LinkStore
	opts    Options
	logger  zerolog.Logger
}

// New builds a controller. daemon and monitor may be nil when downloads are not
// requested; links may be nil to skip the links file.
func New(cache types.Client, daemon downloader.Daemon, monitor Monitor, links LinkStore, opts Options) *Controller {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Controller{
		cache:   cache,
		daemon:  daemon,
		monitor: monitor,
		links:   links,
		opts:    opts,
		logger:  logger.New("workflow"),
	}
}

// run is the mutable state of one Run call.
type run struct {
	magnet string
	info   *utils.Magnet
	state  State
	result *Result
	gids   []string
	files  []*progress.File
}

func (r *run) transition(c *Controller, to State) {
	c.logger.Debug().Msgf("%s -> %s", r.state, to)
	r.result.Trace = append(r.result.Trace, Transition{From: r.state, To: to, At: time.Now()})
	r.state = to
}

// Run drives one magnet through the workflow. It never panics on remote
// errors; the returned Result says how the run ended.
func (c *Controller) Run(ctx context.Context, magnet string) Result {
	r := &run{magnet: magnet, state: ValidateInput, result: &Result{}}

	for !r.state.Terminal() {
		if ctx.Err() != nil {
			return c.cancelled(r, ctx.Err())
		}
		next, err := c.step(ctx, r)
		if err != nil {
			if ctx.Err() != nil {
				return c.cancelled(r, ctx.Err())
			}
			r.result.Err = &PhaseError{State: r.state, Err: err}
			c.logger.Error().Err(err).Msgf("%s failed", r.state)
			r.transition(c, Failed)
			break
		}
		r.transition(c, next)
	}

	r.result.State = r.state
	if r.state == Failed {
		r.result.Outcome = OutcomeFailed
		c.cleanup(r)
	} else {
		r.result.Outcome = OutcomeCompleted
	}
	return *r.result
}

func (c *Controller) cancelled(r *run, err error) Result {
	c.logger.Info().Msgf("Cancelled during %s", r.state)
	c.removeTasks(r)
	r.result.State = r.state
	r.result.Outcome = OutcomeCancelled
	r.result.Err = err
	c.cleanup(r)
	return *r.result
}

func (c *Controller) step(ctx context.Context, r *run) (State, error) {
	switch r.state {
	case ValidateInput:
		return c.validate(r)
	case SubmitMagnet:
		return c.submit(ctx, r)
	case AwaitCaching:
		return c.awaitCaching(ctx, r)
	case ResolveLinks:
		return c.resolve(ctx, r)
	case DispatchDownloads:
		return c.dispatch(ctx, r)
	case MonitorDownloads:
		return c.monitorDownloads(ctx, r)
	default:
		return Failed, fmt.Errorf("unexpected state %s", r.state)
	}
}

func (c *Controller) validate(r *run) (State, error) {
	if !utils.ValidateMagnet(r.magnet) {
		return Failed, ErrInvalidMagnet
	}
	info, err := utils.GetMagnetInfo(r.magnet)
	if err != nil {
		// The hash is well formed; only the optional parameters are unreadable.
		c.logger.Debug().Err(err).Msg("Magnet parameters ignored")
		return SubmitMagnet, nil
	}
	r.info = info
	c.logger.Debug().Msgf("Magnet %s (%s) with %d trackers", info.InfoHash, info.Name, len(info.Trackers))
	return SubmitMagnet, nil
}

// reconcile checks the service's view of the torrent against the magnet: an
// unnamed torrent takes the magnet's display name, a different info hash is reported.
func (c *Controller) reconcile(r *run, t *types.Torrent) {
	if r.info == nil || t == nil {
		return
	}
	if (t.Name == "" || t.Name == types.UnknownName) && r.info.Name != "" {
		t.Name = utils.RemoveInvalidChars(r.info.Name)
	}
	if t.InfoHash != "" && !strings.EqualFold(t.InfoHash, r.info.InfoHash) {
		c.logger.Warn().Msgf("Torrent %s reports info hash %s, magnet has %s", t.Id, t.InfoHash, r.info.InfoHash)
	}
}

func (c *Controller) submit(ctx context.Context, r *run) (State, error) {
	t, err := c.cache.SubmitMagnet(ctx, r.magnet)
	if t != nil {
		r.result.Torrent = t
	}
	if err != nil {
		return Failed, err
	}
	c.reconcile(r, t)
	c.logger.Info().Msgf("Torrent %s (%s) submitted to %s", t.Name, t.Id, c.cache.GetName())
	if !c.opts.PrintLinks && !c.opts.Download {
		return Completed, nil
	}
	return AwaitCaching, nil
}

func (c *Controller) awaitCaching(ctx context.Context, r *run) (State, error) {
	t := r.result.Torrent
	c.logger.Info().Msgf("Waiting for %s to be cached", t.Name)
	if err := c.cache.WaitForStatus(ctx, t.Id, types.StatusDownloaded, t.Bytes); err != nil {
		return Failed, err
	}
	// Links are only complete once the torrent is cached.
	fresh, err := c.cache.GetTorrent(ctx, t.Id)
	if err != nil {
		return Failed, err
	}
	c.reconcile(r, fresh)
	r.result.Torrent = fresh
	return ResolveLinks, nil
}

func (c *Controller) resolve(ctx context.Context, r *run) (State, error) {
	t := r.result.Torrent
	pairs, mismatch := types.PairLinks(t)
	if len(pairs) == 0 {
		return Failed, ErrNoLinks
	}
	if mismatch {
		c.logger.Warn().Msgf("Torrent %s lists %d files but %d links, keeping %d pairs", t.Name, len(t.Files), len(t.Links), len(pairs))
	}

	resolved, err := c.cache.UnrestrictLinks(ctx, pairs)
	if err != nil {
		return Failed, err
	}
	r.result.Unresolved = len(pairs) - len(resolved)
	if len(resolved) == 0 {
		return Failed, ErrAllLinksFailed
	}
	if r.result.Unresolved > 0 {
		c.logger.Warn().Msgf("%d of %d links could not be resolved", r.result.Unresolved, len(pairs))
	}
	r.result.Links = resolved

	if c.links != nil {
		if err := c.writeLinks(ctx, r); err != nil {
			return Failed, err
		}
	}
	return DispatchDownloads, nil
}

func (c *Controller) writeLinks(ctx context.Context, r *run) error {
	path, err := c.links.Write(r.result.Torrent.Name, types.URLs(r.result.Links))
	if err != nil {
		return err
	}
	if c.opts.OutputDir != "" {
		if path, err = linkfile.Promote(path, c.opts.OutputDir); err != nil {
			return err
		}
	}
	r.result.LinksFile = path
	c.logger.Info().Msgf("Links written to %s", path)
	if err := c.links.Publish(ctx, path); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish links file")
	}
	return nil
}

func (c *Controller) dispatch(ctx context.Context, r *run) (State, error) {
	if c.opts.PrintLinks {
		_, _ = fmt.Fprintln(c.opts.Out, "Download link(s):")
		for _, url := range types.URLs(r.result.Links) {
			_, _ = fmt.Fprintln(c.opts.Out, url)
		}
	}
	if !c.opts.Download {
		return Completed, nil
	}
	if c.daemon == nil || c.monitor == nil {
		return Failed, errors.New("downloads requested without a downloader")
	}

	if err := c.daemon.EnsureRunning(ctx); err != nil {
		return Failed, err
	}
	for _, link := range r.result.Links {
		gid, err := c.daemon.AddTask(ctx, link.URL, downloader.Options{Out: utils.SafeFileName(link.FileName)})
		if err != nil {
			c.removeTasks(r)
			return Failed, fmt.Errorf("adding %s: %w", link.FileName, err)
		}
		r.gids = append(r.gids, gid)
		r.files = append(r.files, &progress.File{GID: gid, Name: link.FileName})
	}
	c.logger.Info().Msgf("%d downloads handed to %s", len(r.files), c.daemon.Name())
	return MonitorDownloads, nil
}

func (c *Controller) monitorDownloads(ctx context.Context, r *run) (State, error) {
	summary, err := c.monitor.Run(ctx, r.files)
	r.result.Summary = &summary
	// The monitor already removed what was left.
	r.gids = nil
	if err != nil {
		return Failed, err
	}
	if len(summary.Failed) > 0 {
		return Failed, fmt.Errorf("%w: %d of %d", ErrDownloadsFailed, len(summary.Failed), len(r.files))
	}
	return Completed, nil
}

// removeTasks drops every task this run added that the monitor has not taken over.
func (c *Controller) removeTasks(r *run) {
	if c.daemon == nil || len(r.gids) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	for _, gid := range r.gids {
		c.daemon.RemoveTask(ctx, gid)
	}
	r.gids = nil
}

func (c *Controller) cleanup(r *run) {
	if !c.opts.Cleanup || r.result.Torrent == nil || r.result.Torrent.Id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := c.cache.DeleteTorrent(ctx, r.result.Torrent.Id); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to delete remote torrent")
	}
}
