// Package chain keeps the render chain of an element tree: the per-element
// render data, the dirty lists that drive incremental updates and the
// ordered command list evaluated by the device.
//
// Changes reported by the scene graph are queued per dirty class and per
// hierarchy depth. ProcessChanges walks the classes in a fixed order
// (clipping, opacity, color, transform and size, visuals), each from the
// shallowest dirty depth to the deepest, so a parent's derived state is
// current before its children recompute theirs. Element mutation is
// blocked from the visuals pass until the end of Render.
package chain
