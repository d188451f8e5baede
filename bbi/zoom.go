// Copyright 2018 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bbi

// The file ends with a copy of the magic number.
const trailerSize = 4

type viewKey struct {
	offset, extent uint64
}

// View returns the index best suited to a display in which one pixel covers
// 1/scale bases: the coarsest zoom level whose reduction level is at most
// twice the number of bases per pixel, or the unzoomed index if there is no
// such level.  The coarsest level is only considered when the file size is
// known, since its extent cannot be bounded otherwise.
func (f *File) View(scale float64) *View {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.scales[scale]; ok {
		return v
	}
	v := f.selectView(scale)
	f.scales[scale] = v
	return v
}

// UnzoomedView returns the index over the base pair data.
func (f *File) UnzoomedView() *View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unzoomedView()
}

// selectView must be called with f.mu held.
func (f *File) selectView(scale float64) *View {
	basesPerPixel := 1 / scale
	zooms := f.header.ZoomLevels
	top := len(zooms) - 1
	if f.size == 0 {
		top--
	}
	for i := top; i >= 0; i-- {
		if float64(zooms[i].ReductionLevel) <= 2*basesPerPixel {
			return f.viewLocked(zooms[i].IndexOffset, f.zoomExtent(i), true, zooms[i].ReductionLevel)
		}
	}
	return f.unzoomedView()
}

func (f *File) unzoomedView() *View {
	offset := f.header.UnzoomedIndexOffset
	extent := f.extentToEnd(offset)
	if zooms := f.header.ZoomLevels; len(zooms) > 0 && zooms[0].DataOffset > offset {
		extent = zooms[0].DataOffset - offset
	}
	return f.viewLocked(offset, extent, false, 0)
}

// zoomExtent returns the number of bytes available to the index of zoom
// level i, or zero if that cannot be determined.
func (f *File) zoomExtent(i int) uint64 {
	zooms := f.header.ZoomLevels
	offset := zooms[i].IndexOffset
	if i+1 < len(zooms) {
		if next := zooms[i+1].DataOffset; next > offset {
			return next - offset
		}
		return 0
	}
	return f.extentToEnd(offset)
}

func (f *File) extentToEnd(offset uint64) uint64 {
	if f.size == 0 || f.size < offset+trailerSize {
		return 0
	}
	return f.size - trailerSize - offset
}

func (f *File) viewLocked(offset, extent uint64, zoomed bool, reduction uint32) *View {
	key := viewKey{offset: offset, extent: extent}
	if v, ok := f.views[key]; ok {
		return v
	}
	v := &View{file: f, offset: offset, extent: extent, zoomed: zoomed, reduction: reduction}
	f.views[key] = v
	return v
}
