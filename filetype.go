// Copyright 2025 Ian Lewis
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package dsldict

import (
	"path/filepath"
	"strings"
)

// Media references in [s] and [video] tags are classified by extension
// only; the engine never decodes media beyond probing picture sizes.

var soundExts = map[string]bool{
	".wav": true, ".mp3": true, ".ogg": true, ".oga": true, ".opus": true,
	".spx": true, ".flac": true, ".aac": true, ".m4a": true, ".wma": true,
	".au": true, ".voc": true,
}

var pictureExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
	".tif": true, ".tiff": true, ".webp": true, ".ico": true, ".svg": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".webm": true, ".avi": true, ".mkv": true, ".mov": true,
	".flv": true, ".wmv": true, ".mpg": true, ".mpeg": true, ".3gp": true,
}

func isNameOfSound(name string) bool {
	return soundExts[strings.ToLower(filepath.Ext(name))]
}

func isNameOfPicture(name string) bool {
	return pictureExts[strings.ToLower(filepath.Ext(name))]
}

func isNameOfVideo(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}
