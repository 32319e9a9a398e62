package send

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/chatdeck/chatdeck/internal/browser"
	"github.com/chatdeck/chatdeck/internal/retry"
)

// attachSpec is the per-channel inventory for the attachment upload protocol.
type attachSpec struct {
	// attachSelectors locate the paperclip/plus affordance, in priority
	// order.
	attachSelectors []string

	// attachFallbackScript is the structural fallback: find the attach icon
	// and click its nearest clickable ancestor. Must return "clicked" on
	// success.
	attachFallbackScript string

	// menuOpenScript returns "true" once the attachment menu is visible.
	menuOpenScript string

	// itemSelectors locate the menu item for each attachment kind.
	itemSelectors map[AttachmentKind][]string

	// itemLabels are the expected menu-item labels per kind, used for the
	// fuzzy label fallback when selectors rot.
	itemLabels map[AttachmentKind][]string

	// menuLabelsScript returns the visible menu item labels as a JSON array.
	menuLabelsScript string

	// clickItemScriptFmt clicks the nth visible menu item; takes the index
	// as a fmt argument and returns "clicked" on success.
	clickItemScriptFmt string

	// previewSelectors match the upload preview/caption surface.
	previewSelectors []string

	// sendSelectors locate the preview's send control.
	sendSelectors []string

	// sendFallbackScript clicks the send control by label/role when the
	// selectors fail. Must return "clicked" on success.
	sendFallbackScript string
}

type dialogOutcome struct {
	dialog browser.FileDialog
	err    error
}

// SendAttachment uploads one file through the channel's attachment menu.
//
// The file chooser can open synchronously as a side effect of the menu item
// click, so interception is armed before the click is issued and the click
// runs while the waiter is already live. The menu click's outcome is
// inspected first: a failed click means no dialog is coming, and the waiter
// is cancelled instead of being awaited to its timeout.
func (s *channelSender) SendAttachment(ctx context.Context, sess browser.Session, absPath string, kind AttachmentKind) error {
	spec := s.spec.attach

	if err := s.openAttachMenu(ctx, sess, spec); err != nil {
		return err
	}
	s.waitMenuVisible(ctx, sess, spec)

	waiter, err := sess.ExpectFileDialog(s.cfg.DialogTimeout)
	if err != nil {
		return fmt.Errorf("arm file chooser interception: %w", err)
	}

	dialogCh := make(chan dialogOutcome, 1)
	go func() {
		d, err := waiter.Wait(ctx)
		dialogCh <- dialogOutcome{dialog: d, err: err}
	}()

	menuErr := s.clickMenuItem(ctx, sess, spec, kind)
	if menuErr != nil {
		waiter.Cancel()
		<-dialogCh
		return fmt.Errorf("%w: %v", ErrMenuInteraction, menuErr)
	}

	out := <-dialogCh
	if out.err != nil {
		return fmt.Errorf("%w: %v", ErrDialogNotIntercepted, out.err)
	}
	if err := out.dialog.SetFiles(absPath); err != nil {
		return fmt.Errorf("supply file to chooser: %w", err)
	}

	s.waitPreview(ctx, sess, spec, absPath)

	if err := s.clickPreviewSend(ctx, sess, spec); err != nil {
		return err
	}
	return nil
}

// openAttachMenu clicks the attach affordance: selectors first, then the
// structural icon-ancestor fallback.
func (s *channelSender) openAttachMenu(ctx context.Context, sess browser.Session, spec attachSpec) error {
	el, err := firstVisible(ctx, sess, spec.attachSelectors)
	if err != nil {
		return fmt.Errorf("probe attach control: %w", err)
	}
	if el != nil {
		if err := sess.Click(ctx, el.Selector); err == nil {
			return nil
		}
	}

	out, err := sess.Evaluate(ctx, spec.attachFallbackScript)
	if err != nil {
		return fmt.Errorf("attach control fallback: %w", err)
	}
	if out != "clicked" {
		return fmt.Errorf("attach control not found")
	}
	return nil
}

// waitMenuVisible polls for the open menu. On timeout it waits a short grace
// period and proceeds anyway: some client builds render the menu without the
// markers the probe looks for.
func (s *channelSender) waitMenuVisible(ctx context.Context, sess browser.Session, spec attachSpec) {
	deadline := time.Now().Add(s.cfg.MenuWait)
	for {
		if s.evalTrue(ctx, sess, spec.menuOpenScript) {
			return
		}
		if time.Now().After(deadline) {
			sendLog.Debug("attach_menu_probe_timeout",
				slog.String("service", string(s.spec.service)))
			_ = sleep(ctx, s.cfg.MenuGrace)
			return
		}
		if sleep(ctx, s.cfg.MenuPoll) != nil {
			return
		}
	}
}

// clickMenuItem tries the kind's menu item with internal retries, moving from
// exact selectors to fuzzy label matching as strategies fail.
func (s *channelSender) clickMenuItem(ctx context.Context, sess browser.Session, spec attachSpec, kind AttachmentKind) error {
	policy := retry.Policy{
		Attempts:   s.cfg.MenuItemAttempts,
		BaseDelay:  s.cfg.MenuItemRetryDelay,
		Multiplier: 1,
	}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		var lastErr error
		el, err := firstVisible(ctx, sess, spec.itemSelectors[kind])
		if err != nil {
			lastErr = err
		} else if el != nil {
			cerr := sess.Click(ctx, el.Selector)
			if cerr == nil {
				return nil
			}
			lastErr = cerr
		}

		lerr := s.clickMenuItemByLabel(ctx, sess, spec, kind)
		if lerr == nil {
			return nil
		}
		if lastErr == nil {
			lastErr = lerr
		}
		return lastErr
	})
	if err != nil {
		return fmt.Errorf("after %d attempts: %w", s.cfg.MenuItemAttempts, err)
	}
	return nil
}

// clickMenuItemByLabel reads the visible menu labels and fuzzy-matches the
// kind's expected labels against them, clicking the best hit by index.
func (s *channelSender) clickMenuItemByLabel(ctx context.Context, sess browser.Session, spec attachSpec, kind AttachmentKind) error {
	raw, err := sess.Evaluate(ctx, spec.menuLabelsScript)
	if err != nil {
		return fmt.Errorf("read menu labels: %w", err)
	}
	var labels []string
	if err := json.Unmarshal([]byte(raw), &labels); err != nil || len(labels) == 0 {
		return fmt.Errorf("no menu labels visible")
	}

	idx := -1
	for _, want := range spec.itemLabels[kind] {
		matches := fuzzy.Find(strings.ToLower(want), lowered(labels))
		if len(matches) > 0 {
			idx = matches[0].Index
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("no menu label matched %q (saw: %s)", kind, strings.Join(labels, ", "))
	}

	out, err := sess.Evaluate(ctx, fmt.Sprintf(spec.clickItemScriptFmt, idx))
	if err != nil {
		return fmt.Errorf("click menu item %d: %w", idx, err)
	}
	if out != "clicked" {
		return fmt.Errorf("menu item %d did not accept click", idx)
	}
	return nil
}

func lowered(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

// waitPreview polls for the upload preview. Best effort: some uploads skip
// the preview surface entirely, so absence only logs.
func (s *channelSender) waitPreview(ctx context.Context, sess browser.Session, spec attachSpec, absPath string) {
	deadline := time.Now().Add(s.cfg.PreviewWait)
	for {
		el, err := firstVisible(ctx, sess, spec.previewSelectors)
		if err == nil && el != nil {
			return
		}
		if time.Now().After(deadline) {
			sendLog.Debug("attach_preview_not_observed",
				slog.String("service", string(s.spec.service)),
				slog.String("file", absPath))
			return
		}
		if sleep(ctx, s.cfg.PreviewPoll) != nil {
			return
		}
	}
}

// clickPreviewSend confirms the upload: selectors, then the label/role
// fallback script, then Enter as a last resort.
func (s *channelSender) clickPreviewSend(ctx context.Context, sess browser.Session, spec attachSpec) error {
	el, err := firstVisible(ctx, sess, spec.sendSelectors)
	if err == nil && el != nil {
		if err := sess.Click(ctx, el.Selector); err == nil {
			return nil
		}
	}

	if out, err := sess.Evaluate(ctx, spec.sendFallbackScript); err == nil && out == "clicked" {
		return nil
	}

	if err := sess.Press(ctx, "Enter"); err != nil {
		return fmt.Errorf("confirm upload: %w", err)
	}
	return nil
}
