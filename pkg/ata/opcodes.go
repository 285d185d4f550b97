// Copyright (c) 2021 by library authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// ATA command definitions.

package ata

const (
	// ATA commands
	ATA_READ_DMA_EXT            = 0x25
	ATA_WRITE_DMA_EXT           = 0x35
	ATA_READ_VERIFY_SECTORS     = 0x40
	ATA_READ_FPDMA_QUEUED       = 0x60
	ATA_WRITE_FPDMA_QUEUED      = 0x61
	ATA_READ_LOG_EXT            = 0x2f
	ATA_SMART                   = 0xb0
	ATA_READ_DMA                = 0xc8
	ATA_WRITE_DMA               = 0xca
	ATA_CHECK_POWER_MODE        = 0xe5
	ATA_FLUSH_CACHE             = 0xe7
	ATA_IDENTIFY_DEVICE         = 0xec
	ATA_READ_NATIVE_MAX_ADDRESS = 0xf8

	// ATA feature register values for SMART
	SMART_READ_DATA     = 0xd0
	SMART_READ_LOG      = 0xd5
	SMART_RETURN_STATUS = 0xda

	// Device register bit selecting LBA addressing.
	DeviceLBA = 0x40
)
