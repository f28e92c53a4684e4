// Package visual is a small retained element tree that reports its
// changes to a render chain.
//
// An Element holds a layout and a list of Content values painted in
// order. Setters update the layout and notify the chain the tree is
// attached to; detached trees only record the change.
package visual
