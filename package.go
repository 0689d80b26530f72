// Powerselect is a Go implementation of the ComfyUI image power selector node: a
// node with a variable number of image inputs, each carrying an on/off toggle whose
// state survives saving and reloading a workflow. It builds on a Go model of ComfyUI
// workflow graphs and talks to a ComfyUI backend to queue workflows that use it.
package powerselect
