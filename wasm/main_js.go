//go:build js && wasm

package main

import (
	"context"
	"syscall/js"

	"github.com/voxelsplace/boxfish/api"
	"github.com/voxelsplace/boxfish/snapshot"
	"github.com/voxelsplace/boxfish/volume"
)

func bytesArg(v js.Value) []byte {
	buf := make([]byte, v.Get("length").Int())
	js.CopyBytesToGo(buf, v)
	return buf
}

func toJS(b []byte) js.Value {
	arr := js.Global().Get("Uint8Array").New(len(b))
	js.CopyBytesToJS(arr, b)
	return arr
}

// importSnapshot(name, bytes) converts an importable file to a snapshot.
func importSnapshot(this js.Value, args []js.Value) any {
	if len(args) < 2 {
		return js.ValueOf("missing file name or bytes")
	}
	out, err := api.ImportToSnapshot(context.Background(), args[0].String(), bytesArg(args[1]), snapshot.CompressionZstd, nil)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

// snapshot2glb(bytes, scale?) meshes a snapshot into a binary glTF.
func snapshot2glb(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing snapshot bytes")
	}
	opts := volume.Options{Workers: 1}
	if len(args) > 1 && args[1].Type() == js.TypeNumber {
		opts.Scale = float32(args[1].Float())
	}
	out, err := api.SnapshotToGLB(context.Background(), bytesArg(args[0]), opts)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

// generateTerrain(seed, radius, height) returns a terrain snapshot.
func generateTerrain(this js.Value, args []js.Value) any {
	if len(args) < 3 {
		return js.ValueOf("missing seed, radius or height")
	}
	out, err := api.GenerateSnapshot(context.Background(), uint64(args[0].Int()), args[1].Int(), args[2].Int(), snapshot.CompressionZstd)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func rle2vopl(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing rle string")
	}
	out, err := api.RLEToVOPL(args[0].String())
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func packVopls(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing files object")
	}
	filesObj := args[0]
	files := map[string][]byte{}
	keys := js.Global().Get("Object").Call("keys", filesObj)
	for i := 0; i < keys.Length(); i++ {
		k := keys.Index(i).String()
		files[k] = bytesArg(filesObj.Get(k))
	}
	out, err := api.PackVOPLs(files)
	if err != nil {
		return js.ValueOf(err.Error())
	}
	return toJS(out)
}

func unpackVoplpack(this js.Value, args []js.Value) any {
	if len(args) < 1 {
		return js.ValueOf("missing pack bytes")
	}
	files, err := api.UnpackVOPLPack(bytesArg(args[0]))
	if err != nil {
		return js.ValueOf(err.Error())
	}
	result := js.Global().Get("Object").New()
	for name, b := range files {
		result.Set(name, toJS(b))
	}
	return result
}

func main() {
	js.Global().Set("importSnapshot", js.FuncOf(importSnapshot))
	js.Global().Set("snapshot2glb", js.FuncOf(snapshot2glb))
	js.Global().Set("generateTerrain", js.FuncOf(generateTerrain))
	js.Global().Set("rle2vopl", js.FuncOf(rle2vopl))
	js.Global().Set("packVopls", js.FuncOf(packVopls))
	js.Global().Set("unpackVoplpack", js.FuncOf(unpackVoplpack))
	select {}
}
