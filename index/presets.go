// elUMI: a high-performance tool for consensus calling duplicate reads in FASTQ files.
// Copyright (c) 2024 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/elumi/blob/master/LICENSE.txt>.

package index

import "fmt"

// Barcode header presets. The capture groups of the regex form the
// barcode+UMI identifier of a read.
var presets = map[string]string{
	// @BARCODE_UMI format as produced by Flexiplex for 10x3 chemistry.
	"bc-umi": `^([ATCG]{16})_([ATCG]{12})`,

	// _<UMI> format as produced by umi-tools extract.
	"umi-tools": `_([ATCG]+)$`,

	// bcl2fastq format, with :<UMI> at the end of the read id.
	"illumina": `:([ATCG]+)$`,
}

// PresetRegex returns the barcode regex for a named preset.
func PresetRegex(name string) (string, error) {
	re, ok := presets[name]
	if !ok {
		return "", fmt.Errorf("unknown barcode preset %v; available presets are bc-umi, umi-tools, and illumina", name)
	}
	return re, nil
}
