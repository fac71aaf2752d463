package browser

import (
	"context"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// stealthScript masks the properties automation detectors probe first.
// It runs before any page script in every frame of the page it is added to.
const stealthScript = `
(() => {
    const define = (obj, prop, get) =>
        Object.defineProperty(obj, prop, { get, configurable: true });

    define(navigator, 'webdriver', () => undefined);
    delete Object.getPrototypeOf(navigator).webdriver;

    const plugins = ['Chrome PDF Plugin', 'Chrome PDF Viewer', 'Native Client'].map((name) => {
        const p = Object.create(Plugin.prototype);
        Object.defineProperty(p, 'name', { value: name, enumerable: true });
        return p;
    });
    define(navigator, 'plugins', () => {
        const list = Object.create(PluginArray.prototype);
        plugins.forEach((p, i) => { list[i] = p; });
        Object.defineProperty(list, 'length', { value: plugins.length });
        return list;
    });

    define(navigator, 'languages', () => ['en-US', 'en']);
    define(navigator, 'hardwareConcurrency', () => 8);

    if (!window.chrome) {
        window.chrome = {};
    }
    window.chrome.runtime = window.chrome.runtime || {};
    window.chrome.app = window.chrome.app || { isInstalled: false };

    const query = window.navigator.permissions && window.navigator.permissions.query;
    if (query) {
        window.navigator.permissions.query = (params) =>
            params && params.name === 'notifications'
                ? Promise.resolve({ state: Notification.permission })
                : query.call(window.navigator.permissions, params);
    }

    const patchGL = (proto) => {
        const getParameter = proto.getParameter;
        proto.getParameter = function (param) {
            if (param === 37445) return 'Intel Inc.';
            if (param === 37446) return 'Intel Iris OpenGL Engine';
            return getParameter.call(this, param);
        };
    };
    if (window.WebGLRenderingContext) patchGL(WebGLRenderingContext.prototype);
    if (window.WebGL2RenderingContext) patchGL(WebGL2RenderingContext.prototype);
})();
`

// StealthFlags are extra launch flags that hide the automation banner and
// the AutomationControlled blink feature.
func StealthFlags() []chromedp.ExecAllocatorOption {
	return []chromedp.ExecAllocatorOption{
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("lang", "en-US,en"),
		chromedp.WindowSize(1920, 1080),
	}
}

// StealthAction registers the stealth script for every new document in the
// page it runs against.
func StealthAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
		return err
	})
}
