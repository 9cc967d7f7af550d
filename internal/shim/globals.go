package shim

// banner installs the globals that bundled Node-oriented code expects. Each
// global is only defined when the host environment lacks it, so the banner is
// a no-op in environments that already provide them.
const banner = `var __wrapkit_g = typeof globalThis !== "undefined" ? globalThis : typeof self !== "undefined" ? self : this;
if (typeof __wrapkit_g.window === "undefined") { __wrapkit_g.window = __wrapkit_g; }
if (typeof __wrapkit_g.self === "undefined") { __wrapkit_g.self = __wrapkit_g; }
if (typeof __wrapkit_g.global === "undefined") { __wrapkit_g.global = __wrapkit_g; }
if (typeof __wrapkit_g.process === "undefined") {
  __wrapkit_g.process = { env: { NODE_ENV: "production" }, browser: true, version: "", versions: {}, nextTick: function (fn) { var args = Array.prototype.slice.call(arguments, 1); Promise.resolve().then(function () { fn.apply(null, args); }); } };
}`

// Banner returns the JavaScript prepended to browser artifacts.
func Banner() string { return banner }

// Globals lists the global names the banner defines when absent.
func Globals() []string {
	return []string{"window", "self", "global", "process"}
}
