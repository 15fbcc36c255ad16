package browser

import "panelqa-runner/internal/dom"

// snapshotJS returns the dom.Snapshot fields of this element.
const snapshotJS = `() => {
	const el = this;
	const attr = (n) => (el.getAttribute && el.getAttribute(n)) || '';
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	const visible = style.display !== 'none' && style.visibility !== 'hidden' &&
		style.opacity !== '0' && rect.width > 0 && rect.height > 0;
	const attrs = {};
	for (const { name, value } of Array.from(el.attributes || [])) {
		if (name.startsWith('data-') || name.startsWith('aria-')) attrs[name] = value;
	}
	return {
		tag: (el.tagName || '').toLowerCase(),
		type: (attr('type') || '').toLowerCase(),
		id: el.id || '',
		name: attr('name'),
		class: typeof el.className === 'string' ? el.className : attr('class'),
		placeholder: attr('placeholder'),
		role: attr('role'),
		for: attr('for'),
		title: attr('title'),
		text: ((el.innerText !== undefined ? el.innerText : el.textContent) || '').trim().slice(0, 2000),
		value: el.value !== undefined && el.value !== null ? String(el.value) : '',
		visible,
		checked: !!el.checked,
		disabled: !!el.disabled,
		attrs,
		box: { X: rect.x, Y: rect.y, Width: rect.width, Height: rect.height },
	};
}`

const dispatchChangeJS = `() => {
	this.dispatchEvent(new Event('input', { bubbles: true }));
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

const setCheckedJS = `(checked) => {
	this.checked = checked;
	this.dispatchEvent(new Event('change', { bubbles: true }));
}`

// scripts maps page routines to their source.
var scripts = map[dom.Script]string{
	dom.ScriptRemoveOverlays: `() => {
		document.querySelectorAll('.swal2-container, .modal-backdrop').forEach((el) => el.remove());
		document.body.classList.remove('swal2-shown', 'swal2-height-auto', 'modal-open');
		document.body.style.overflow = '';
		document.body.style.paddingRight = '';
	}`,
}
