package send

import (
	"strings"

	"github.com/chatdeck/chatdeck/internal/browser"
)

// whatsAppSpec returns the selector inventory for the WhatsApp web client.
func whatsAppSpec() channelSpec {
	return channelSpec{
		service: browser.ServiceWhatsApp,
		domain:  "web.whatsapp.com",
		homeURL: "https://web.whatsapp.com/",

		conversationURL: func(address string) string {
			// The send deep link wants bare digits.
			return "https://web.whatsapp.com/send?phone=" + strings.TrimPrefix(address, "+")
		},

		inputSelectors: []string{
			`#main footer div[contenteditable="true"]`,
			`div[contenteditable="true"][data-tab="10"]`,
			`div[contenteditable="true"][data-tab="1"]`,
		},

		outgoingBubbleSelector: `#main div.message-out`,

		inputEmptyScript: `(() => {
  const el = document.querySelector('#main footer div[contenteditable="true"]');
  if (!el) return 'false';
  return (el.innerText || '').trim().length === 0 ? 'true' : 'false';
})()`,

		deliveredSelectors: []string{
			`#main div.message-out span[data-icon="msg-dblcheck"]`,
			`#main div.message-out span[data-icon="msg-check"]`,
			`#main div.message-out span[data-icon="msg-time"]`,
		},

		attach: attachSpec{
			attachSelectors: []string{
				`button[aria-label="Attach"]`,
				`div[title="Attach"]`,
				`span[data-icon="attach-menu-plus"]`,
				`span[data-icon="plus"]`,
				`span[data-icon="clip"]`,
			},
			attachFallbackScript: `(() => {
  const icon = document.querySelector('span[data-icon="attach-menu-plus"], span[data-icon="plus"], span[data-icon="clip"]');
  if (!icon) return 'missing';
  const target = icon.closest('button, div[role="button"]') || icon;
  target.click();
  return 'clicked';
})()`,
			menuOpenScript: `(() => {
  const menu = document.querySelector('ul[role="menu"], div[role="application"] ul, span[data-icon="document"]');
  return menu ? 'true' : 'false';
})()`,
			itemSelectors: map[AttachmentKind][]string{
				AttachmentDocument: {
					`li[data-testid="mi-attach-document"]`,
					`span[data-icon="document"]`,
					`span[data-icon="attach-document"]`,
				},
				AttachmentMedia: {
					`li[data-testid="mi-attach-media"]`,
					`span[data-icon="media-multiple"]`,
					`span[data-icon="image"]`,
					`span[data-icon="attach-image"]`,
				},
			},
			itemLabels: map[AttachmentKind][]string{
				AttachmentDocument: {"document"},
				AttachmentMedia:    {"photos & videos", "photos and videos", "gallery"},
			},
			menuLabelsScript: `(() => {
  const items = document.querySelectorAll('ul[role="menu"] li, ul[role="menu"] [role="button"]');
  const labels = [];
  for (const it of items) {
    const t = (it.innerText || '').trim();
    if (t) labels.push(t);
  }
  return JSON.stringify(labels);
})()`,
			clickItemScriptFmt: `(() => {
  const items = document.querySelectorAll('ul[role="menu"] li, ul[role="menu"] [role="button"]');
  const it = items[%d];
  if (!it) return 'missing';
  it.click();
  return 'clicked';
})()`,
			previewSelectors: []string{
				`div[data-testid="media-caption-input-container"]`,
				`div[aria-label="Add a caption"]`,
				`div[data-animate-media-viewer="true"]`,
			},
			sendSelectors: []string{
				`span[data-icon="send"]`,
				`div[aria-label="Send"]`,
				`button[aria-label="Send"]`,
			},
			sendFallbackScript: `(() => {
  const byLabel = document.querySelector('[aria-label="Send"]');
  const icon = document.querySelector('span[data-icon="send"]');
  const target = byLabel || (icon && (icon.closest('button, div[role="button"]') || icon));
  if (!target) return 'missing';
  target.click();
  return 'clicked';
})()`,
		},
	}
}
