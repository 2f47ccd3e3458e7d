// Copyright 2023 The NLP Odyssey Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package torch

import (
	"strconv"

	"github.com/nlpodyssey/tensorinspect/errkind"
	"github.com/nlpodyssey/tensorinspect/pickle"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	rebuildTensorV2  = pickle.Global{Module: "torch._utils", Name: "_rebuild_tensor_v2"}
	rebuildTensorV1  = pickle.Global{Module: "torch._utils", Name: "_rebuild_tensor"}
	rebuildParameter = pickle.Global{Module: "torch._utils", Name: "_rebuild_parameter"}
	orderedDict      = pickle.Global{Module: "collections", Name: "OrderedDict"}
)

// Extract returns the descriptors of the tensors found in the root
// dictionary of a decoded archive payload, in insertion order.
//
// Entries with a non-string key, nested dictionaries (such as "_metadata")
// and values which are not calls to a known tensor rebuild function are
// skipped. The root must be a dict, or an OrderedDict, otherwise
// errkind.UnexpectedRootShape is returned.
func Extract(root pickle.Value) ([]Descriptor, error) {
	d, err := rootDict(root)
	if err != nil {
		return nil, err
	}
	var out []Descriptor
	for k, v := range d.Items() {
		key, ok := k.(pickle.String)
		if !ok {
			klog.V(2).Infof("skipping entry with %s key %s", k.Kind(), k)
			continue
		}
		name := string(key)
		r, ok := v.(*pickle.Reduce)
		if !ok {
			klog.V(2).Infof("skipping entry %q: %s value", name, v.Kind())
			continue
		}
		desc, ok, err := rebuild(r)
		if err != nil {
			return nil, errors.WithMessagef(err, "tensor %q", name)
		}
		if !ok {
			klog.V(2).Infof("skipping entry %q: call to %s", name, r.Callable)
			continue
		}
		desc.Name = name
		klog.V(2).Infof("tensor %q: %s %v (storage %q)", desc.Name, desc.DType, desc.Shape, desc.StorageID)
		out = append(out, desc)
	}
	return out, nil
}

func rootDict(root pickle.Value) (*pickle.Dict, error) {
	switch v := root.(type) {
	case *pickle.Dict:
		return v, nil
	case *pickle.Reduce:
		if g, ok := v.Global(); ok && g == orderedDict {
			return orderedDictItems(v)
		}
		return nil, errkind.New(errkind.UnexpectedRootShape, "expected a dict, found a call to %s", v.Callable).WithValue(v.Kind())
	case nil:
		return nil, errkind.New(errkind.UnexpectedRootShape, "expected a dict, found nothing")
	default:
		return nil, errkind.New(errkind.UnexpectedRootShape, "expected a dict, found %s", v.Kind()).WithValue(v.Kind())
	}
}

// orderedDictItems collects the items of an OrderedDict, given either as
// constructor argument (a sequence of pairs, or a dict) or set afterwards.
func orderedDictItems(r *pickle.Reduce) (*pickle.Dict, error) {
	out := pickle.NewDict()
	if len(r.Args) > 1 {
		return nil, errkind.New(errkind.UnexpectedRootShape, "OrderedDict with %d arguments", len(r.Args))
	}
	if len(r.Args) == 1 {
		var pairs []pickle.Value
		switch arg := r.Args[0].(type) {
		case *pickle.Dict:
			for k, v := range arg.Items() {
				if err := out.Set(k, v); err != nil {
					return nil, err
				}
			}
		case *pickle.List:
			pairs = arg.Items
		case pickle.Tuple:
			pairs = arg
		default:
			return nil, errkind.New(errkind.UnexpectedRootShape, "OrderedDict built from %s", arg.Kind())
		}
		for _, p := range pairs {
			pair, ok := p.(pickle.Tuple)
			if !ok || len(pair) != 2 {
				return nil, errkind.New(errkind.UnexpectedRootShape, "OrderedDict item is not a pair: %s", p)
			}
			if err := out.Set(pair[0], pair[1]); err != nil {
				return nil, err
			}
		}
	}
	if r.DictItems != nil {
		for k, v := range r.DictItems.Items() {
			if err := out.Set(k, v); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// rebuild interprets a call to one of the allow-listed rebuild functions.
// It returns false if the callable is not one of them.
func rebuild(r *pickle.Reduce) (Descriptor, bool, error) {
	g, ok := r.Global()
	if !ok {
		return Descriptor{}, false, nil
	}
	switch g {
	case rebuildTensorV2:
		d, err := rebuildTensor(g, r.Args, 6, 7)
		return d, err == nil, err
	case rebuildTensorV1:
		d, err := rebuildTensor(g, r.Args, 4, 4)
		return d, err == nil, err
	case rebuildParameter:
		d, err := unwrapParameter(r.Args)
		return d, err == nil, err
	default:
		return Descriptor{}, false, nil
	}
}

// rebuildTensor interprets the arguments
// (storage, storage_offset, size, stride[, requires_grad, backward_hooks[, metadata]]).
func rebuildTensor(g pickle.Global, args pickle.Tuple, minArity, maxArity int) (Descriptor, error) {
	if len(args) < minArity || len(args) > maxArity {
		return Descriptor{}, arityError(g, len(args), minArity, maxArity)
	}
	d, err := parseStorage(args[0])
	if err != nil {
		return Descriptor{}, err
	}
	if d.StorageOffset, err = nonNegativeInt(args[1], "storage offset"); err != nil {
		return Descriptor{}, err
	}
	if d.Shape, err = intTuple(args[2], "shape"); err != nil {
		return Descriptor{}, err
	}
	if d.Stride, err = intTuple(args[3], "stride"); err != nil {
		return Descriptor{}, err
	}
	if len(d.Stride) != len(d.Shape) {
		return Descriptor{}, errkind.New(errkind.MalformedValue,
			"stride %v does not match shape %v", d.Stride, d.Shape)
	}
	if err := d.checkSizes(); err != nil {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "shape %v", d.Shape).WithCause(err)
	}
	if len(args) > 4 {
		if d.RequiresGrad, err = boolArg(args[4], "requires_grad"); err != nil {
			return Descriptor{}, err
		}
	}
	return d, nil
}

// unwrapParameter interprets the arguments (data, requires_grad, backward_hooks).
func unwrapParameter(args pickle.Tuple) (Descriptor, error) {
	if len(args) != 3 {
		return Descriptor{}, arityError(rebuildParameter, len(args), 3, 3)
	}
	inner, ok := args[0].(*pickle.Reduce)
	if !ok {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "parameter data must be a tensor, found %s", args[0].Kind())
	}
	d, ok, err := rebuild(inner)
	if err != nil {
		return Descriptor{}, err
	}
	if !ok {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "parameter data must be a tensor, found a call to %s", inner.Callable)
	}
	if d.RequiresGrad, err = boolArg(args[1], "requires_grad"); err != nil {
		return Descriptor{}, err
	}
	d.Parameter = true
	return d, nil
}

func arityError(g pickle.Global, got, minArity, maxArity int) error {
	want := strconv.Itoa(minArity)
	if maxArity != minArity {
		want += " or " + strconv.Itoa(maxArity)
	}
	return errkind.New(errkind.MalformedValue, "%s takes %s arguments, found %d", g.FullName(), want, got).WithValue(got)
}

// parseStorage interprets the persistent id of a storage:
// ("storage", <storage type>, key, location, numel).
func parseStorage(v pickle.Value) (Descriptor, error) {
	pid, ok := v.(pickle.PersistentID)
	if !ok {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "storage must be a persistent id, found %s", v.Kind())
	}
	t, ok := pid.ID.(pickle.Tuple)
	if !ok || len(t) != 5 {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "unexpected storage persistent id %s", pid.ID)
	}
	if tag, ok := t[0].(pickle.String); !ok || tag != "storage" {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "unexpected persistent id tag %s", t[0])
	}

	st, ok := t[1].(pickle.Global)
	if !ok {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "storage type must be a global, found %s", t[1].Kind())
	}
	if st.Module != "torch" {
		return Descriptor{}, errkind.New(errkind.UnknownDtype, "unknown storage type %q", st.FullName()).WithValue(st.FullName())
	}
	dt, err := StorageDType(st.Name)
	if err != nil {
		return Descriptor{}, err
	}

	var d Descriptor
	d.DType = dt
	switch key := t[2].(type) {
	case pickle.String:
		d.StorageID = string(key)
	case pickle.Int:
		d.StorageID = strconv.FormatInt(int64(key), 10)
	default:
		return Descriptor{}, errkind.New(errkind.MalformedValue, "storage key must be a string, found %s", t[2].Kind())
	}
	location, ok := t[3].(pickle.String)
	if !ok {
		return Descriptor{}, errkind.New(errkind.MalformedValue, "storage location must be a string, found %s", t[3].Kind())
	}
	d.Location = string(location)
	if d.StorageNumel, err = nonNegativeInt(t[4], "storage size"); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func nonNegativeInt(v pickle.Value, what string) (int, error) {
	i, ok := v.(pickle.Int)
	if !ok {
		return 0, errkind.New(errkind.MalformedValue, "%s must be an int, found %s", what, v.Kind())
	}
	if i < 0 {
		return 0, errkind.New(errkind.MalformedValue, "negative %s %d", what, int64(i)).WithValue(int64(i))
	}
	return int(i), nil
}

// intTuple converts a tuple of non-negative ints.
func intTuple(v pickle.Value, what string) ([]int, error) {
	t, ok := v.(pickle.Tuple)
	if !ok {
		return nil, errkind.New(errkind.MalformedValue, "%s must be a tuple, found %s", what, v.Kind())
	}
	out := make([]int, len(t))
	for i, item := range t {
		n, ok := item.(pickle.Int)
		if !ok {
			return nil, errkind.New(errkind.MalformedValue, "%s dimension %d must be an int, found %s", what, i, item.Kind())
		}
		if n < 0 {
			return nil, errkind.New(errkind.MalformedValue, "negative %s dimension %d: %d", what, i, int64(n)).WithValue(int64(n))
		}
		out[i] = int(n)
	}
	return out, nil
}

func boolArg(v pickle.Value, what string) (bool, error) {
	switch b := v.(type) {
	case pickle.Bool:
		return bool(b), nil
	case pickle.Int:
		return b != 0, nil
	default:
		return false, errkind.New(errkind.MalformedValue, "%s must be a bool, found %s", what, v.Kind())
	}
}
