package send

import (
	"strings"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// telegramSpec returns the selector inventory for the Telegram web client
// (the /k build).
func telegramSpec() channelSpec {
	return channelSpec{
		service: browser.ServiceTelegram,
		domain:  "web.telegram.org",
		homeURL: "https://web.telegram.org/k/",

		conversationURL: func(address string) string {
			// Telegram deep links want the international form.
			if !strings.HasPrefix(address, "+") {
				address = "+" + address
			}
			return "https://web.telegram.org/k/#" + address
		},

		inputSelectors: []string{
			`div.input-message-input[contenteditable="true"]`,
			`.input-message-input`,
		},

		outgoingBubbleSelector: `.bubble.is-out`,

		inputEmptyScript: `(() => {
  const el = document.querySelector('.input-message-input');
  if (!el) return 'false';
  return (el.innerText || '').trim().length === 0 ? 'true' : 'false';
})()`,

		deliveredSelectors: []string{
			`.bubble.is-out .time .tgico-check`,
			`.bubble.is-out .time-sent-status`,
		},

		attach: attachSpec{
			attachSelectors: []string{
				`.btn-icon.attach-file`,
				`button.attach-file`,
				`.attach-file`,
			},
			attachFallbackScript: `(() => {
  const icon = document.querySelector('.tgico-attach, .attach-file span');
  if (!icon) return 'missing';
  const target = icon.closest('button, .btn-icon') || icon;
  target.click();
  return 'clicked';
})()`,
			menuOpenScript: `(() => {
  const menu = document.querySelector('.btn-menu.was-open, .btn-menu.active');
  return menu ? 'true' : 'false';
})()`,
			itemSelectors: map[AttachmentKind][]string{
				AttachmentDocument: {
					`.btn-menu.was-open .menu-attach-document`,
					`.btn-menu .btn-menu-item.menu-attach-document`,
				},
				AttachmentMedia: {
					`.btn-menu.was-open .menu-attach-media`,
					`.btn-menu .btn-menu-item.menu-attach-media`,
				},
			},
			itemLabels: map[AttachmentKind][]string{
				AttachmentDocument: {"document", "file"},
				AttachmentMedia:    {"photo or video", "photo", "media"},
			},
			menuLabelsScript: `(() => {
  const items = document.querySelectorAll('.btn-menu.was-open .btn-menu-item, .btn-menu.active .btn-menu-item');
  const labels = [];
  for (const it of items) {
    const t = (it.innerText || '').trim();
    if (t) labels.push(t);
  }
  return JSON.stringify(labels);
})()`,
			clickItemScriptFmt: `(() => {
  const items = document.querySelectorAll('.btn-menu.was-open .btn-menu-item, .btn-menu.active .btn-menu-item');
  const it = items[%d];
  if (!it) return 'missing';
  it.click();
  return 'clicked';
})()`,
			previewSelectors: []string{
				`.popup-new-media`,
				`.popup-send-photo`,
				`.popup.active .popup-container`,
			},
			sendSelectors: []string{
				`.popup-new-media .btn-primary`,
				`.popup.active button.btn-primary`,
			},
			sendFallbackScript: `(() => {
  const popup = document.querySelector('.popup.active');
  if (!popup) return 'missing';
  const buttons = popup.querySelectorAll('button');
  for (const b of buttons) {
    if ((b.innerText || '').trim().toLowerCase().startsWith('send')) {
      b.click();
      return 'clicked';
    }
  }
  return 'missing';
})()`,
		},
	}
}
