// Copyright 2026 The Flowstate Authors
// This file is part of Flowstate.
//
// Flowstate is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Flowstate is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Flowstate. If not, see <http://www.gnu.org/licenses/>.

package statetable

import "github.com/pkg/errors"

var (
	errShortKey            = errors.New("buffer too short for declared column type")
	errTrailingBytes       = errors.New("trailing bytes after decoding all declared columns")
	errBadMarker           = errors.New("unrecognized null/non-null marker byte")
	errMalformedBytesGroup = errors.New("malformed bytes-group continuation marker")
)

func errTypeMismatch(t ColumnType, d Datum) error {
	return errors.Errorf("value %#v does not match declared column type %s", d, t)
}

func errUnknownType(t ColumnType) error {
	return errors.Errorf("unknown column type %s", t)
}
