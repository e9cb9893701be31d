package menu

import (
	"context"
	"fmt"

	"github.com/menuflow/qbremote/pkg/downloader"
	"github.com/menuflow/qbremote/pkg/session"
)

// Handler applies decoded actions to session state. It never touches
// delivery; the engine renders and ships the result afterwards.
type Handler struct {
	downloaders *downloader.Registry
}

func NewHandler(dls *downloader.Registry) *Handler {
	return &Handler{downloaders: dls}
}

// Apply mutates the session for one action. The returned notice, when
// non-empty, is user-facing text the engine surfaces alongside the
// rendered view. An unknown or impossible action parks the session on
// the start view rather than failing the whole interaction.
func (h *Handler) Apply(ctx context.Context, s *session.Session, a Action) (notice string, err error) {
	switch a.Command {
	case CmdGoTo:
		if a.View == "" {
			return "", fmt.Errorf("go_to without a target view")
		}
		s.GoTo(a.View)

	case CmdGoBack:
		target := a.View
		if target == "" {
			target = ViewStart
		}
		s.GoBack(target)

	case CmdPageNext:
		s.PageNext()

	case CmdPagePrev:
		s.PagePrev()

	case CmdRefresh:
		// State is already current; the re-render does the work.

	case CmdClose:
		s.GoTo(ViewClose)

	case CmdSelectDownloader:
		if _, err := h.downloaders.Instance(a.Value); err != nil {
			s.GoTo(ViewStart)
			return fmt.Sprintf("⚠️ Downloader %q is gone. Back to the main menu.", a.Value), nil
		}
		s.Business.DownloaderName = a.Value
		target := a.View
		if target == "" {
			target = ViewTasks
		}
		s.GoTo(target)

	default:
		return "", fmt.Errorf("unknown command %q", a.Command)
	}
	return "", nil
}
