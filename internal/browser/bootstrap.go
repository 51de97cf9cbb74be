package browser

import (
	"strconv"
	"time"
)

// bindingName is the window function the page calls to forward events.
const bindingName = "__chatMemoryEvent"

const (
	// HeartbeatInterval is how often a running controller stamps the page.
	HeartbeatInterval = 3 * time.Second

	// staleAfter is how long the page keeps suppressing native sends
	// without a stamp. After that the controller is presumed gone.
	staleAfter = 10 * time.Second

	// ackTimeout bounds the wait for the controller to accept a forwarded
	// submission before the native action is replayed.
	ackTimeout = 1500 * time.Millisecond
)

// bootstrapJS runs in every document before page scripts. It owns the
// synchronous half of interception: native submit actions are suppressed
// in the event handler itself and the intent is forwarded to Go. Sends are
// only suppressed while the controller keeps stamping S.alive.
var bootstrapJS = `(() => {
	if (window.__chatMemory) return;

	const S = window.__chatMemory = {
		bypass: false,
		alive: 0,
		triggers: new Set(),
	};

	// live reports whether a controller stamped the page recently.
	S.live = () => typeof window.` + bindingName + ` === 'function' &&
		Date.now() - S.alive < ` + strconv.FormatInt(staleAfter.Milliseconds(), 10) + `;

	// emit forwards an event. When el is set the native action was
	// suppressed, and it is replayed unless the controller accepts the event.
	S.emit = (type, el) => {
		let settled = false;
		const replay = () => {
			if (settled) return;
			settled = true;
			if (el) S.passThrough(type, el);
		};
		const timer = el ? setTimeout(replay, ` + strconv.FormatInt(ackTimeout.Milliseconds(), 10) + `) : null;
		try {
			const fn = window.` + bindingName + `;
			if (typeof fn !== 'function') return replay();
			Promise.resolve(fn({ type: type, at: Date.now() })).then((res) => {
				if (res && res.accepted) {
					settled = true;
					clearTimeout(timer);
				} else {
					clearTimeout(timer);
					replay();
				}
			}, () => {
				clearTimeout(timer);
				replay();
			});
		} catch (e) {
			clearTimeout(timer);
			replay();
		}
	};

	// passThrough performs the native action of a suppressed event.
	S.passThrough = (type, el) => {
		if (!el.isConnected) return;
		if (type === 'send_click') {
			S.click(el);
			return;
		}
		S.bypass = true;
		try {
			el.dispatchEvent(new KeyboardEvent('keydown', {
				key: 'Enter', code: 'Enter', keyCode: 13, which: 13, bubbles: true, cancelable: true,
			}));
		} finally {
			S.bypass = false;
		}
	};

	S.find = (sel) => document.querySelector(sel);

	S.onEnter = (e) => {
		if (S.bypass || e.isComposing) return;
		if (e.key !== 'Enter' || e.shiftKey || e.altKey || e.ctrlKey || e.metaKey) return;
		if (!S.live()) return;
		e.preventDefault();
		e.stopImmediatePropagation();
		S.emit('enter', e.currentTarget);
	};

	S.onSendClick = (e) => {
		if (S.bypass || !S.live()) return;
		e.preventDefault();
		e.stopImmediatePropagation();
		S.emit('send_click', e.currentTarget);
	};

	S.attach = (el, kind) => {
		if (kind === 'input') {
			el.addEventListener('keydown', S.onEnter, true);
		} else {
			el.addEventListener('click', S.onSendClick, true);
		}
	};

	S.attachTrigger = (anchor) => {
		const parent = anchor.parentElement;
		if (!parent) return false;
		for (const t of S.triggers) {
			if (t.__memAnchor === anchor && t.isConnected) return true;
		}
		const btn = document.createElement('button');
		btn.type = 'button';
		btn.textContent = 'M';
		btn.title = 'Add memories (Ctrl+M)';
		btn.setAttribute('data-memory-trigger', 'true');
		btn.style.cssText = 'margin:0 4px;padding:0 8px;border-radius:6px;border:1px solid #86efac;background:#dcfce7;color:#166534;font-weight:600;cursor:pointer;';
		btn.__memAnchor = anchor;
		btn.addEventListener('click', (e) => {
			e.preventDefault();
			e.stopPropagation();
			S.emit('trigger');
		});
		parent.insertBefore(btn, anchor);
		S.triggers.add(btn);
		return true;
	};

	S.removeOrphans = () => {
		let n = 0;
		for (const t of Array.from(S.triggers)) {
			const anchor = t.__memAnchor;
			if (!anchor || !anchor.isConnected || !t.isConnected) {
				t.remove();
				S.triggers.delete(t);
				n++;
			}
		}
		return n;
	};

	S.read = (el, rich) => {
		if (el.isContentEditable) return rich ? el.innerHTML : el.innerText;
		return el.value !== undefined ? el.value : el.textContent;
	};

	S.write = (el, content, rich) => {
		el.focus();
		if (el.isContentEditable) {
			if (rich) el.innerHTML = content; else el.innerText = content;
			const range = document.createRange();
			range.selectNodeContents(el);
			range.collapse(false);
			const sel = window.getSelection();
			sel.removeAllRanges();
			sel.addRange(range);
		} else {
			const proto = el instanceof HTMLTextAreaElement ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
			const setter = Object.getOwnPropertyDescriptor(proto, 'value').set;
			setter.call(el, content);
		}
		el.dispatchEvent(new Event('input', { bubbles: true }));
		return true;
	};

	S.click = (el) => {
		S.bypass = true;
		try {
			el.click();
		} finally {
			S.bypass = false;
		}
		return true;
	};

	S.notify = (message) => {
		const box = document.createElement('div');
		box.setAttribute('data-memory-notice', 'true');
		box.textContent = message;
		box.style.cssText = 'position:fixed;bottom:24px;right:24px;z-index:2147483647;padding:10px 14px;border-radius:8px;background:#1f2937;color:#fff;font:14px sans-serif;box-shadow:0 4px 12px rgba(0,0,0,.2);';
		(document.body || document.documentElement).appendChild(box);
		setTimeout(() => box.remove(), 3000);
		return true;
	};

	S.messages = (userSels, asstSels) => {
		const seen = new Set();
		const out = [];
		const collect = (sels, role) => {
			for (const sel of sels) {
				let nodes;
				try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
				for (const n of nodes) {
					if (seen.has(n)) continue;
					seen.add(n);
					out.push({ node: n, role: role });
				}
			}
		};
		collect(userSels || [], 'user');
		collect(asstSels || [], 'assistant');
		out.sort((a, b) => a.node.compareDocumentPosition(b.node) & Node.DOCUMENT_POSITION_FOLLOWING ? -1 : 1);
		return out
			.map((m) => ({ role: m.role, content: (m.node.innerText || '').trim() }))
			.filter((m) => m.content !== '');
	};

	document.addEventListener('keydown', (e) => {
		if (!(e.ctrlKey || e.metaKey) || (e.key || '').toLowerCase() !== 'm') return;
		e.preventDefault();
		e.stopPropagation();
		S.emit('shortcut');
	}, true);

	let pending = null;
	const observe = () => {
		new MutationObserver(() => {
			if (pending) return;
			pending = setTimeout(() => {
				pending = null;
				S.emit('mutation');
			}, 50);
		}).observe(document.body, { childList: true, subtree: true });
		S.emit('mutation');
	};
	if (document.body) observe();
	else document.addEventListener('DOMContentLoaded', observe, { once: true });
})()`
