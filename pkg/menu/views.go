package menu

import (
	"context"
	"fmt"
	"strings"

	"github.com/menuflow/qbremote/pkg/bus"
	"github.com/menuflow/qbremote/pkg/capability"
	"github.com/menuflow/qbremote/pkg/downloader"
	"github.com/menuflow/qbremote/pkg/logger"
	"github.com/menuflow/qbremote/pkg/session"
)

// RenderedView is the channel-neutral output of rendering one view:
// text plus an ordered button grid. Adapters translate it to their
// platform's message shape.
type RenderedView struct {
	Title   string
	Text    string
	Buttons [][]bus.Button
}

// RenderFunc renders one view against the current session state.
type RenderFunc func(ctx context.Context, s *session.Session) (*RenderedView, error)

// Renderer turns a session's current view into a RenderedView,
// honoring the channel's button capabilities.
type Renderer struct {
	caps        capability.Provider
	codec       *Codec
	downloaders *downloader.Registry
	appVersion  string

	views map[string]RenderFunc
}

func NewRenderer(caps capability.Provider, codec *Codec, dls *downloader.Registry, appVersion string) *Renderer {
	r := &Renderer{
		caps:        caps,
		codec:       codec,
		downloaders: dls,
		appVersion:  appVersion,
		views:       make(map[string]RenderFunc),
	}
	r.views[ViewStart] = r.renderDownloaderList
	r.views[ViewDownloaderMenu] = r.renderDownloaderList
	r.views[ViewTasks] = r.renderTasks
	r.views[ViewSettings] = r.renderSettings
	r.views[ViewVersion] = r.renderVersion
	r.views[ViewClose] = r.renderClose
	return r
}

// RegisterView adds a custom view renderer. The view name must also be
// registered in the view registry for buttons to reference it.
func (r *Renderer) RegisterView(name string, fn RenderFunc) error {
	if _, ok := r.views[name]; ok {
		return fmt.Errorf("view %q already has a renderer", name)
	}
	r.views[name] = fn
	return nil
}

// Render renders the session's current view. A view with no renderer
// sends the session back to start, telling the user, so it never goes
// dark.
func (r *Renderer) Render(ctx context.Context, s *session.Session) (*RenderedView, error) {
	fn, ok := r.views[s.Business.CurrentView]
	if !ok {
		logger.WarnCF("menu", "No renderer for view, falling back to start", map[string]any{
			"view":    s.Business.CurrentView,
			"session": s.ID,
		})
		s.GoTo(ViewStart)
		fn = r.views[ViewStart]
	}
	view, err := fn(ctx, s)
	if err != nil {
		return nil, err
	}
	if !ok {
		view.Text = "⚠️ That screen is unavailable. Back to the main menu.\n\n" + view.Text
	}
	r.degrade(s.Message.Channel, view)
	return view, nil
}

// degrade folds the button grid into numbered text lines on channels
// without button support.
func (r *Renderer) degrade(channel string, v *RenderedView) {
	if r.caps.SupportsButtons(channel) || len(v.Buttons) == 0 {
		return
	}
	var b strings.Builder
	b.WriteString(v.Text)
	b.WriteString("\n")
	n := 0
	for _, row := range v.Buttons {
		for _, btn := range row {
			n++
			fmt.Fprintf(&b, "\n%s %s", circled(n), btn.Label)
		}
	}
	v.Text = b.String()
	v.Buttons = nil
}

// pageDims sizes one page of a paginated listing. Wide layouts spend
// two rows on entries; cramped ones keep a single row so navigation
// always fits.
func pageDims(total, perRow, maxRows int) (pageSize, totalPages int) {
	if perRow < 1 {
		perRow = 1
	}
	rows := 1
	if maxRows >= 4 {
		rows = 2
	}
	pageSize = rows * perRow
	totalPages = (total + pageSize - 1) / pageSize
	// An empty listing still counts as one page so the stored cursor
	// clamps to 0. Renderers short-circuit the no-items case before
	// paginating.
	if totalPages < 1 {
		totalPages = 1
	}
	return pageSize, totalPages
}

// paginate updates the session's pagination state for a listing of
// total entries and returns the index range of the current page.
func (r *Renderer) paginate(s *session.Session, total int) (lo, hi int) {
	perRow := r.caps.MaxButtonsPerRow(s.Message.Channel)
	maxRows := r.caps.MaxButtonRows(s.Message.Channel)
	pageSize, totalPages := pageDims(total, perRow, maxRows)

	s.Business.TotalPages = totalPages
	if s.Business.Page > totalPages-1 {
		s.Business.Page = totalPages - 1
	}
	if s.Business.Page < 0 {
		s.Business.Page = 0
	}

	lo = s.Business.Page * pageSize
	hi = lo + pageSize
	if hi > total {
		hi = total
	}
	if lo > total {
		lo = total
	}
	return lo, hi
}

func (r *Renderer) button(s *session.Session, label string, a Action) bus.Button {
	return bus.Button{Label: label, Data: r.codec.Encode(s.ID, a)}
}

func (r *Renderer) backButton(s *session.Session, toView string) bus.Button {
	return r.button(s, "◀️ Back", Action{Command: CmdGoBack, View: toView})
}

func (r *Renderer) refreshButton(s *session.Session, view string) bus.Button {
	return r.button(s, "🔄 Refresh", Action{Command: CmdRefresh, View: view})
}

func (r *Renderer) closeButton(s *session.Session) bus.Button {
	return r.button(s, "❌ Close", Action{Command: CmdClose, View: ViewClose})
}

// chunk splits buttons into rows of at most perRow entries.
func chunk(buttons []bus.Button, perRow int) [][]bus.Button {
	if perRow < 1 {
		perRow = 1
	}
	var rows [][]bus.Button
	for len(buttons) > 0 {
		n := perRow
		if n > len(buttons) {
			n = len(buttons)
		}
		rows = append(rows, buttons[:n])
		buttons = buttons[n:]
	}
	return rows
}

// renderDownloaderList is the root screen: the configured downloaders,
// paginated, each page's text lines and select buttons built from the
// same slice so the circled numbers always match the buttons shown. It
// backs both the start view and the explicit downloader menu.
func (r *Renderer) renderDownloaderList(ctx context.Context, s *session.Session) (*RenderedView, error) {
	all := r.downloaders.Names()
	if len(all) == 0 {
		return &RenderedView{
			Title:   "qBittorrent Remote",
			Text:    "🤖 qBittorrent Remote\n\nNo downloaders configured.",
			Buttons: [][]bus.Button{{r.closeButton(s)}},
		}, nil
	}

	running := r.downloaders.RunningNames(ctx)
	isRunning := make(map[string]bool, len(running))
	for _, n := range running {
		isRunning[n] = true
	}

	view := s.Business.CurrentView
	lo, hi := r.paginate(s, len(all))

	var b strings.Builder
	b.WriteString("🤖 qBittorrent Remote\n\nPick a downloader:\n")
	var picks []bus.Button
	for i, name := range all[lo:hi] {
		marker := "🔴"
		if isRunning[name] {
			marker = "🟢"
		}
		fmt.Fprintf(&b, "\n%s %s %s", circled(i+1), marker, name)
		picks = append(picks, r.button(s, fmt.Sprintf("%s %s", circled(i+1), truncate(name, 24)), Action{
			Command: CmdSelectDownloader,
			View:    ViewTasks,
			Value:   name,
		}))
	}
	if s.Business.TotalPages > 1 {
		fmt.Fprintf(&b, "\n\nPage %d/%d", s.Business.Page+1, s.Business.TotalPages)
	}
	b.WriteString("\n\n" + refreshStamp())

	perRow := r.caps.MaxButtonsPerRow(s.Message.Channel)
	rows := chunk(picks, perRow)

	var nav []bus.Button
	if s.Business.Page > 0 {
		nav = append(nav, r.button(s, "⬅️", Action{Command: CmdPagePrev, View: view}))
	}
	nav = append(nav, r.refreshButton(s, view))
	if s.Business.Page < s.Business.TotalPages-1 {
		nav = append(nav, r.button(s, "➡️", Action{Command: CmdPageNext, View: view}))
	}
	rows = append(rows, nav)
	rows = append(rows, []bus.Button{
		r.button(s, "⚙️ Settings", Action{Command: CmdGoTo, View: ViewSettings}),
		r.button(s, "ℹ️ Version", Action{Command: CmdGoTo, View: ViewVersion}),
	})
	rows = append(rows, []bus.Button{r.closeButton(s)})

	return &RenderedView{Title: "Downloaders", Text: b.String(), Buttons: rows}, nil
}

func (r *Renderer) renderTasks(ctx context.Context, s *session.Session) (*RenderedView, error) {
	name := s.Business.DownloaderName
	backRows := [][]bus.Button{
		{r.backButton(s, ViewDownloaderMenu), r.closeButton(s)},
	}
	if name == "" {
		return &RenderedView{
			Title:   "Transfer",
			Text:    "No downloader selected.",
			Buttons: backRows,
		}, nil
	}

	acc, err := r.downloaders.Instance(name)
	if err != nil {
		return &RenderedView{
			Title:   "Transfer",
			Text:    fmt.Sprintf("⚠️ %s is no longer available.", name),
			Buttons: backRows,
		}, nil
	}

	info, err := acc.TransferInfo(ctx)
	if err != nil {
		logger.WarnCF("menu", "Transfer info fetch failed", map[string]any{
			"downloader": name,
			"error":      err.Error(),
		})
		return &RenderedView{
			Title:   "Transfer",
			Text:    fmt.Sprintf("⚠️ Could not reach %s. Try refreshing.", name),
			Buttons: [][]bus.Button{{r.refreshButton(s, ViewTasks)}, backRows[0]},
		}, nil
	}

	text := fmt.Sprintf(
		"📊 %s\n\n⬇️ Speed: %s\n⬆️ Speed: %s\n📦 Downloaded: %s\n📤 Uploaded: %s",
		name,
		formatSpeed(info.DownloadSpeed),
		formatSpeed(info.UploadSpeed),
		formatBytes(info.DownloadedBytes),
		formatBytes(info.UploadedBytes),
	)
	return &RenderedView{
		Title: "Transfer",
		Text:  text,
		Buttons: [][]bus.Button{
			{r.refreshButton(s, ViewTasks)},
			backRows[0],
		},
	}, nil
}

func (r *Renderer) renderSettings(ctx context.Context, s *session.Session) (*RenderedView, error) {
	var b strings.Builder
	b.WriteString("⚙️ Settings\n")
	fmt.Fprintf(&b, "\nChannel: %s", s.Message.Channel)
	fmt.Fprintf(&b, "\nDownloaders configured: %d", len(r.downloaders.Names()))
	if s.Business.DownloaderName != "" {
		fmt.Fprintf(&b, "\nSelected downloader: %s", s.Business.DownloaderName)
	}
	return &RenderedView{
		Title: "Settings",
		Text:  b.String(),
		Buttons: [][]bus.Button{
			{r.backButton(s, ViewStart), r.closeButton(s)},
		},
	}, nil
}

func (r *Renderer) renderVersion(ctx context.Context, s *session.Session) (*RenderedView, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "ℹ️ qbremote %s", r.appVersion)

	if name := s.Business.DownloaderName; name != "" {
		if acc, err := r.downloaders.Instance(name); err == nil {
			if v, err := acc.Version(ctx); err == nil {
				fmt.Fprintf(&b, "\n\n%s: %s (API %s)", name, v.App, v.WebAPI)
			}
		}
	}
	b.WriteString("\n\n" + refreshStamp())
	return &RenderedView{
		Title: "Version",
		Text:  b.String(),
		Buttons: [][]bus.Button{
			{r.backButton(s, ViewStart), r.closeButton(s)},
		},
	}, nil
}

func (r *Renderer) renderClose(ctx context.Context, s *session.Session) (*RenderedView, error) {
	return &RenderedView{
		Title: "Closed",
		Text:  "✅ Session closed. Send /qbremote to start again.",
	}, nil
}
